package service

// optimistic applies a local mutation before a remote call and undoes it when
// the call fails. apply returns an undo token (typically the pre-mutation
// length or snapshot) that rollback consumes. The call's error is returned
// unchanged so callers can still inspect it.
func optimistic[T any](apply func() T, call func() error, rollback func(T)) error {
	token := apply()
	if err := call(); err != nil {
		rollback(token)
		return err
	}
	return nil
}
