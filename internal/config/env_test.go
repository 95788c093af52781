// SPDX-License-Identifier: MIT
package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseString(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		set      bool
		fallback string
		want     string
	}{
		{name: "set", value: "custom", set: true, fallback: "default", want: "custom"},
		{name: "unset", set: false, fallback: "default", want: "default"},
		{name: "empty falls back", value: "", set: true, fallback: "default", want: "default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.set {
				t.Setenv("CORSGATE_TEST_STRING", tt.value)
			}
			assert.Equal(t, tt.want, ParseString("CORSGATE_TEST_STRING", tt.fallback))
		})
	}
}

func TestParseInt(t *testing.T) {
	t.Setenv("CORSGATE_TEST_INT", "42")
	assert.Equal(t, 42, ParseInt("CORSGATE_TEST_INT", 7))

	t.Setenv("CORSGATE_TEST_INT", "not-a-number")
	assert.Equal(t, 7, ParseInt("CORSGATE_TEST_INT", 7))

	assert.Equal(t, 7, ParseInt("CORSGATE_TEST_INT_UNSET", 7))
}

func TestParseBool(t *testing.T) {
	t.Setenv("CORSGATE_TEST_BOOL", "true")
	assert.True(t, ParseBool("CORSGATE_TEST_BOOL", false))

	t.Setenv("CORSGATE_TEST_BOOL", "banana")
	assert.True(t, ParseBool("CORSGATE_TEST_BOOL", true))
}

func TestParseDuration(t *testing.T) {
	t.Setenv("CORSGATE_TEST_DUR", "90s")
	assert.Equal(t, 90*time.Second, ParseDuration("CORSGATE_TEST_DUR", time.Minute))

	t.Setenv("CORSGATE_TEST_DUR", "ninety seconds")
	assert.Equal(t, time.Minute, ParseDuration("CORSGATE_TEST_DUR", time.Minute))
}

func TestParseFloat(t *testing.T) {
	t.Setenv("CORSGATE_TEST_FLOAT", "0.25")
	assert.Equal(t, 0.25, ParseFloat("CORSGATE_TEST_FLOAT", 1.0))

	t.Setenv("CORSGATE_TEST_FLOAT", "a quarter")
	assert.Equal(t, 1.0, ParseFloat("CORSGATE_TEST_FLOAT", 1.0))
}
