//go:build linux

package firewall

import (
	"github.com/google/nftables"
	"github.com/stretchr/testify/mock"
)

// MockNFTablesConn is a testify mock of NFTablesConn. Stub a missing
// object with a nil slice and an error.
type MockNFTablesConn struct {
	mock.Mock
}

// NewMockNFTablesConn creates a new mock nftables connection.
func NewMockNFTablesConn() *MockNFTablesConn {
	return &MockNFTablesConn{}
}

func (m *MockNFTablesConn) ListTables() ([]*nftables.Table, error) {
	return mockResult[[]*nftables.Table](m.Called())
}

func (m *MockNFTablesConn) ListChainsOfTableFamily(family nftables.TableFamily) ([]*nftables.Chain, error) {
	return mockResult[[]*nftables.Chain](m.Called(family))
}

func (m *MockNFTablesConn) GetSets(t *nftables.Table) ([]*nftables.Set, error) {
	return mockResult[[]*nftables.Set](m.Called(t))
}

func (m *MockNFTablesConn) GetSetElements(s *nftables.Set) ([]nftables.SetElement, error) {
	return mockResult[[]nftables.SetElement](m.Called(s))
}
