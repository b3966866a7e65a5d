//go:build !linux

package pool

func pinThread(int) error { return nil }

func nameThread(string) error { return nil }
