package memory

import (
	"context"
	"sync"

	"auction-engine/internal/domain"
)

type User struct {
	ID            string
	Email         string
	Admin         bool
	Validated     bool
	HasCredential bool
}

// UserDirectory is an in-memory domain.UserDirectory.
type UserDirectory struct {
	mu    sync.RWMutex
	users map[string]User
}

func NewUserDirectory(users ...User) *UserDirectory {
	d := &UserDirectory{users: make(map[string]User)}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *UserDirectory) Put(u User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

func (d *UserDirectory) get(userID string) (User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[userID]
	if !ok {
		return User{}, domain.ErrUserNotFound
	}
	return u, nil
}

func (d *UserDirectory) IsAdmin(ctx context.Context, userID string) (bool, error) {
	u, err := d.get(userID)
	if err != nil {
		return false, err
	}
	return u.Admin, nil
}

func (d *UserDirectory) IsEligible(ctx context.Context, userID string) (bool, error) {
	u, err := d.get(userID)
	if err != nil {
		return false, err
	}
	return u.Validated, nil
}

func (d *UserDirectory) HasCredential(ctx context.Context, userID string) (bool, error) {
	u, err := d.get(userID)
	if err != nil {
		return false, err
	}
	return u.HasCredential, nil
}

func (d *UserDirectory) ContactEmail(ctx context.Context, userID string) (string, error) {
	u, err := d.get(userID)
	if err != nil {
		return "", err
	}
	return u.Email, nil
}

// ItemCatalog maps item references to display titles.
type ItemCatalog struct {
	mu     sync.RWMutex
	titles map[string]string
}

func NewItemCatalog(titles map[string]string) *ItemCatalog {
	c := &ItemCatalog{titles: make(map[string]string, len(titles))}
	for k, v := range titles {
		c.titles[k] = v
	}
	return c
}

func (c *ItemCatalog) ItemTitle(ctx context.Context, itemRef string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	title, ok := c.titles[itemRef]
	if !ok {
		return "", domain.ErrItemNotFound
	}
	return title, nil
}
