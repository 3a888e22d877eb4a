// ABOUTME: Ownership checks for websites and conversations
// ABOUTME: Denials reveal nothing about whether the resource exists

package auth

import (
	"context"
	"fmt"
)

// OwnershipStore is the slice of the store the checker needs.
type OwnershipStore interface {
	WebsiteOwnedBy(ctx context.Context, websiteID, userID string) (bool, error)
	ConversationOwnedBy(ctx context.Context, conversationID, userID string) (bool, error)
}

// Checker answers "does user U own resource X". A missing resource and
// a resource owned by someone else are indistinguishable to the caller.
type Checker interface {
	CanAccessWebsite(ctx context.Context, userID, websiteID string) (bool, error)
	CanAccessConversation(ctx context.Context, userID, conversationID string) (bool, error)
}

// StoreChecker implements Checker against the persistence layer.
type StoreChecker struct {
	store OwnershipStore
}

// NewStoreChecker creates a Checker backed by the given store.
func NewStoreChecker(store OwnershipStore) *StoreChecker {
	return &StoreChecker{store: store}
}

// CanAccessWebsite reports whether userID owns the website.
func (c *StoreChecker) CanAccessWebsite(ctx context.Context, userID, websiteID string) (bool, error) {
	ok, err := c.store.WebsiteOwnedBy(ctx, websiteID, userID)
	if err != nil {
		return false, fmt.Errorf("checking website access: %w", err)
	}
	return ok, nil
}

// CanAccessConversation reports whether userID owns the conversation's
// website.
func (c *StoreChecker) CanAccessConversation(ctx context.Context, userID, conversationID string) (bool, error) {
	ok, err := c.store.ConversationOwnedBy(ctx, conversationID, userID)
	if err != nil {
		return false, fmt.Errorf("checking conversation access: %w", err)
	}
	return ok, nil
}
