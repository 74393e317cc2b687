package handler

import (
	"context"

	"github.com/riverreach/ledgerview/engine"
)

// fakeAdapter is a no-op engine.Adapter for handler-level tests that only
// exercise HTTP wiring, not warehouse calls.
type fakeAdapter struct {
	pingErr error
}

func (a fakeAdapter) Exec(_ context.Context, _ engine.Session, _ string, _ ...interface{}) (*engine.Result, error) {
	return &engine.Result{}, nil
}
func (a fakeAdapter) Call(_ context.Context, _ engine.Session, _ string, _ ...interface{}) (*engine.Result, error) {
	return &engine.Result{}, nil
}
func (a fakeAdapter) PutStage(_ context.Context, _ engine.Session, _ string, _ []byte) error {
	return nil
}
func (a fakeAdapter) ListStage(_ context.Context, _ engine.Session, _ string) ([]engine.StageObject, error) {
	return nil, nil
}
func (a fakeAdapter) GetStage(_ context.Context, _ engine.Session, _ string) ([]byte, error) {
	return nil, nil
}
func (a fakeAdapter) CreateOrReplaceApp(_ context.Context, _ engine.Session, _, _ string) error {
	return nil
}
func (a fakeAdapter) Ping(_ context.Context) error { return a.pingErr }
