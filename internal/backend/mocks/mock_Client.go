// Package mocks provides test doubles for the backend client.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"

	backend "github.com/sells-group/equity-map/internal/backend"
	dataset "github.com/sells-group/equity-map/internal/dataset"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Dataset provides a mock function with given fields: ctx
func (_m *MockClient) Dataset(ctx context.Context) (*dataset.Dataset, error) {
	ret := _m.Called(ctx)

	if len(ret) == 0 {
		panic("no return value specified for Dataset")
	}

	var r0 *dataset.Dataset
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context) (*dataset.Dataset, error)); ok {
		return rf(ctx)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*dataset.Dataset)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// IndexFields provides a mock function with given fields: ctx
func (_m *MockClient) IndexFields(ctx context.Context) ([]string, error) {
	ret := _m.Called(ctx)

	if len(ret) == 0 {
		panic("no return value specified for IndexFields")
	}

	var r0 []string
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context) ([]string, error)); ok {
		return rf(ctx)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]string)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// Generate provides a mock function with given fields: ctx, kind, req
func (_m *MockClient) Generate(ctx context.Context, kind string, req backend.GenerateRequest) (*dataset.Dataset, error) {
	ret := _m.Called(ctx, kind, req)

	if len(ret) == 0 {
		panic("no return value specified for Generate")
	}

	var r0 *dataset.Dataset
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, backend.GenerateRequest) (*dataset.Dataset, error)); ok {
		return rf(ctx, kind, req)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*dataset.Dataset)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// NewMockClient creates a new instance of MockClient. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
