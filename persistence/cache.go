package persistence

import (
	lru "github.com/hashicorp/golang-lru"
	"github.com/wanderhub/wanderhub-chat/types"
)

// CachedUserStore puts an LRU in front of a UserStore. Sender summaries are
// resolved on every message and history entry, so profile lookups are hot.
// Negative results are not cached, a just-created user must resolve immediately.
type CachedUserStore struct {
	inner UserStore
	cache *lru.Cache
}

func NewCachedUserStore(inner UserStore, size int) (*CachedUserStore, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &CachedUserStore{inner: inner, cache: cache}, nil
}

func (s *CachedUserStore) FindUserById(id int64) (*types.User, error) {
	if v, ok := s.cache.Get(id); ok {
		user := v.(types.User)
		return &user, nil
	}
	user, err := s.inner.FindUserById(id)
	if err != nil || user == nil {
		return user, err
	}
	s.cache.Add(id, *user)
	return user, nil
}

func (s *CachedUserStore) StoreUser(user types.User) error {
	if err := s.inner.StoreUser(user); err != nil {
		return err
	}
	s.cache.Remove(user.Id)
	return nil
}
