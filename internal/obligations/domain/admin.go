package domain

import (
	"context"
	"strings"
)

// SetAdmin assigns the administrative principal. The first assignment
// must be self-claimed; afterwards only the current admin may reassign.
func (s *Service) SetAdmin(ctx context.Context, caller, newAdmin string) error {
	if err := s.ready(); err != nil {
		return err
	}
	caller = strings.TrimSpace(caller)
	newAdmin = strings.TrimSpace(newAdmin)
	if caller == "" || newAdmin == "" {
		return ErrOwnerRequired
	}
	if err := s.authorizer.Authorize(ctx, caller); err != nil {
		return err
	}

	current, err := s.store.Admin(ctx)
	if err != nil {
		return err
	}
	if current == "" {
		if caller != newAdmin {
			return ErrUnauthorized
		}
	} else if caller != current {
		return ErrUnauthorized
	}

	if err := s.store.SetAdmin(ctx, newAdmin); err != nil {
		return err
	}
	s.emit(ctx, AuditEvent{Kind: "admin.changed", Owner: newAdmin})
	return nil
}

// Pause sets the global pause flag. Admin only.
func (s *Service) Pause(ctx context.Context, caller string) error {
	return s.setPaused(ctx, caller, true)
}

// Unpause clears the global pause flag. Admin only.
func (s *Service) Unpause(ctx context.Context, caller string) error {
	return s.setPaused(ctx, caller, false)
}

// Paused reports the global pause flag.
func (s *Service) Paused(ctx context.Context) (bool, error) {
	if err := s.readyStore(); err != nil {
		return false, err
	}
	return s.store.Paused(ctx)
}

// PauseOperation blocks one mutating entry point. Admin only.
func (s *Service) PauseOperation(ctx context.Context, caller string, op Operation) error {
	return s.setOperationPaused(ctx, caller, op, true)
}

// UnpauseOperation unblocks one mutating entry point. Admin only.
func (s *Service) UnpauseOperation(ctx context.Context, caller string, op Operation) error {
	return s.setOperationPaused(ctx, caller, op, false)
}

// PauseAll sets the global flag and every per-operation flag in one call.
// Admin only; intended as the emergency stop.
func (s *Service) PauseAll(ctx context.Context, caller string) error {
	if err := s.adminGate(ctx, &caller); err != nil {
		return err
	}
	if err := s.store.SetPaused(ctx, true); err != nil {
		return err
	}
	for _, op := range Operations() {
		if err := s.store.SetOperationPaused(ctx, string(op), true); err != nil {
			return err
		}
	}
	s.emit(ctx, AuditEvent{Kind: "service.paused", Owner: caller, Detail: "pause all"})
	return nil
}

func (s *Service) setPaused(ctx context.Context, caller string, paused bool) error {
	if err := s.adminGate(ctx, &caller); err != nil {
		return err
	}
	if err := s.store.SetPaused(ctx, paused); err != nil {
		return err
	}
	kind := "service.unpaused"
	if paused {
		kind = "service.paused"
	}
	s.emit(ctx, AuditEvent{Kind: kind, Owner: caller})
	return nil
}

func (s *Service) setOperationPaused(ctx context.Context, caller string, op Operation, paused bool) error {
	if err := s.adminGate(ctx, &caller); err != nil {
		return err
	}
	if !knownOperation(op) {
		return ErrUnknownOperation
	}
	if err := s.store.SetOperationPaused(ctx, string(op), paused); err != nil {
		return err
	}
	kind := "service.unpaused"
	if paused {
		kind = "service.paused"
	}
	s.emit(ctx, AuditEvent{Kind: kind, Owner: caller, Detail: string(op)})
	return nil
}

func (s *Service) adminGate(ctx context.Context, caller *string) error {
	if err := s.ready(); err != nil {
		return err
	}
	*caller = strings.TrimSpace(*caller)
	if *caller == "" {
		return ErrOwnerRequired
	}
	if err := s.authorizer.Authorize(ctx, *caller); err != nil {
		return err
	}
	return s.requireAdmin(ctx, *caller)
}

func knownOperation(op Operation) bool {
	for _, known := range Operations() {
		if op == known {
			return true
		}
	}
	return false
}
