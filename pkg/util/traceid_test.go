package util

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDToHex(t *testing.T) {
	tc := []struct {
		id       []byte
		expected string
	}{
		{nil, ""},
		{[]byte{}, ""},
		{[]byte{0xAA, 0xBB, 0xCC}, "AABBCC"},
		{[]byte{0x00, 0x00, 0x01}, "000001"},
		{[]byte{0x0a, 0x1b, 0x2c, 0x3d, 0x4e, 0x5f, 0x60, 0x71}, "0A1B2C3D4E5F6071"},
	}

	for _, tt := range tc {
		assert.Equal(t, tt.expected, IDToHex(tt.id))
	}
}

func TestNormalizeID(t *testing.T) {
	traceID := []byte{0x5b, 0x8e, 0xff, 0xf7, 0x98, 0x03, 0x81, 0x03, 0xd2, 0x69, 0xb6, 0x33, 0x81, 0x3f, 0xc6, 0x0c}

	tc := []struct {
		name     string
		id       string
		expected string
	}{
		{
			name:     "empty",
			id:       "",
			expected: "",
		},
		{
			name:     "lowercase hex passes through",
			id:       "5b8efff798038103d269b633813fc60c",
			expected: "5b8efff798038103d269b633813fc60c",
		},
		{
			name:     "uppercase hex passes through",
			id:       "AABBCC",
			expected: "AABBCC",
		},
		{
			name:     "base64",
			id:       base64.StdEncoding.EncodeToString(traceID),
			expected: "5B8EFFF798038103D269B633813FC60C",
		},
		{
			name:     "base64 span id",
			id:       base64.StdEncoding.EncodeToString(traceID[:8]),
			expected: "5B8EFFF798038103",
		},
		{
			name:     "url base64",
			id:       base64.URLEncoding.EncodeToString([]byte{0xff, 0xfe, 0xfd, 0xfc, 0xfb, 0xfa, 0xf9, 0xf8}),
			expected: "FFFEFDFCFBFAF9F8",
		},
		{
			name:     "unpadded base64",
			id:       base64.RawStdEncoding.EncodeToString(traceID),
			expected: "",
		},
		{
			name:     "base64 of an odd width",
			id:       base64.StdEncoding.EncodeToString([]byte{0xff, 0xfe, 0xfd}),
			expected: "",
		},
		{
			name:     "malformed",
			id:       "not an id!",
			expected: "",
		},
		{
			name:     "word",
			id:       "notanid",
			expected: "",
		},
		{
			name:     "valid base64 alphabet",
			id:       "zzzz",
			expected: "",
		},
		{
			name:     "odd length hex",
			id:       "ABC",
			expected: "",
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeID(tt.id))
		})
	}
}

func TestEqualIDs(t *testing.T) {
	b64 := base64.StdEncoding.EncodeToString([]byte{0xaa, 0xbb, 0xcc, 0xdd, 0x00, 0x11, 0x22, 0x33})

	assert.True(t, EqualIDs("aabbccdd", "AABBCCDD"))
	assert.True(t, EqualIDs(b64, "aabbccdd00112233"))
	assert.False(t, EqualIDs("zzzz", "zzzz"))
	assert.False(t, EqualIDs("aabbccdd", "aabbccde"))
	assert.False(t, EqualIDs("", ""))
	assert.False(t, EqualIDs("???", "???"))
}
