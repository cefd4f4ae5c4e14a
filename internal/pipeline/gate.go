package pipeline

import (
	"context"
	"time"

	"sfebot/internal/rate"
	"sfebot/pkg/contract"
)

// gatedStore 在每次存储调用前向闸门申请一个请求额度。
type gatedStore struct {
	contract.Store
	gate       rate.Gate
	read, edit rate.LimitKey
}

func (s gatedStore) Read(ctx context.Context, title contract.Title) (string, error) {
	if err := s.gate.Wait(ctx, rate.Ask{Key: s.read, Requests: 1}); err != nil {
		return "", err
	}
	return s.Store.Read(ctx, title)
}

func (s gatedStore) Save(ctx context.Context, title contract.Title, text, summary string) (contract.SaveResult, error) {
	if err := s.gate.Wait(ctx, rate.Ask{Key: s.edit, Requests: 1}); err != nil {
		return contract.SaveResult{Title: title}, err
	}
	return s.Store.Save(ctx, title, text, summary)
}

func (s gatedStore) List(ctx context.Context, prefix string, ns contract.Namespace) ([]contract.Title, error) {
	if err := s.gate.Wait(ctx, rate.Ask{Key: s.read, Requests: 1}); err != nil {
		return nil, err
	}
	return s.Store.List(ctx, prefix, ns)
}

// gatedActivity 与存储共享读类额度。
type gatedActivity struct {
	contract.Activity
	gate rate.Gate
	key  rate.LimitKey
}

func (a gatedActivity) CountImports(ctx context.Context, user string, ns contract.Namespace, w contract.Window) (int, error) {
	if err := a.gate.Wait(ctx, rate.Ask{Key: a.key, Requests: 1}); err != nil {
		return 0, err
	}
	return a.Activity.CountImports(ctx, user, ns, w)
}

func (a gatedActivity) CountEditsBefore(ctx context.Context, user string, cutoff time.Time, limit int) (int, error) {
	if err := a.gate.Wait(ctx, rate.Ask{Key: a.key, Requests: 1}); err != nil {
		return 0, err
	}
	return a.Activity.CountEditsBefore(ctx, user, cutoff, limit)
}
