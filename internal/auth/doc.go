// ABOUTME: Package auth verifies dashboard tokens and resource ownership
// ABOUTME: HS256 JWTs plus store-backed website/conversation access checks

package auth
