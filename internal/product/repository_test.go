package product

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRepositoriesRejectMalformedIDs(t *testing.T) {
	repos := []struct {
		name string
		repo Repository
		ids  []string
	}{
		{
			name: "postgres",
			repo: NewPostgresRepository(nil),
			ids:  []string{"", "not-a-uuid", "65f1c2a9e4b0a1b2c3d4e5f6", "123e4567-e89b-12d3-a456"},
		},
		{
			name: "mongo",
			repo: NewMongoRepository(nil),
			ids:  []string{"", "not-an-object-id", "123e4567-e89b-12d3-a456-426614174000", "65f1c2a9e4b0a1b2c3d4e5"},
		},
	}

	ctx := context.Background()
	for _, tt := range repos {
		for _, id := range tt.ids {
			t.Run(tt.name+"/"+id, func(t *testing.T) {
				p, err := tt.repo.GetByID(ctx, id)
				assert.Nil(t, p)
				assert.ErrorIs(t, err, ErrNotFound)

				assert.ErrorIs(t, tt.repo.Update(ctx, &Product{ID: id, Name: "Lamp"}), ErrNotFound)
				assert.ErrorIs(t, tt.repo.Delete(ctx, id), ErrNotFound)
			})
		}
	}
}
