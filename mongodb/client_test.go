package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitMongoDB_UnreachablePrimary(t *testing.T) {
	err := InitMongoDB(context.Background(), "mongodb://127.0.0.1:1/?directConnection=true", "unreachable", 200*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not reachable")
	assert.Nil(t, GetDB())
}
