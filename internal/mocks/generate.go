// Package mocks holds gomock doubles for the service ports.
//
//	go generate ./internal/mocks
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=publisher_mock.go github.com/Skotchmaster/usersvc/internal/events Publisher
