package memory_test

import (
	"testing"

	"github.com/aretw0/errand/pkg/adapters/memory"
	"github.com/aretw0/errand/pkg/ports"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunCheckpointStoreContract(t, store)
}

func TestMemoryRepository_Contract(t *testing.T) {
	repo := memory.NewRepository()
	ports.RunTaskRepositoryContract(t, repo)
}
