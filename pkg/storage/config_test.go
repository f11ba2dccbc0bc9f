package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg:  Config{MaxOpenConns: 10, MaxIdleConns: 5},
		},
		{
			name:    "idle exceeds open",
			cfg:     Config{MaxOpenConns: 5, MaxIdleConns: 10},
			wantErr: true,
		},
		{
			name:    "zero max open conns",
			cfg:     Config{MaxOpenConns: 0, MaxIdleConns: 0},
			wantErr: true,
		},
		{
			name:    "negative idle conns",
			cfg:     Config{MaxOpenConns: 10, MaxIdleConns: -1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigDSNIncludesAllFields(t *testing.T) {
	cfg := Config{Host: "db.internal", Port: 5433, User: "u", Password: "p", Database: "tbwo", SSLMode: "require"}
	assert.Equal(t, "host=db.internal port=5433 user=u password=p dbname=tbwo sslmode=require", cfg.DSN())
}
