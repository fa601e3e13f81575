package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublicURLPrefersExplicitBaseURL(t *testing.T) {
	s := &Store{cfg: Config{Bucket: "images", PublicBaseURL: "https://cdn.example.com"}}
	assert.Equal(t, "https://cdn.example.com/users/u1/images/x.png", s.PublicURL("users/u1/images/x.png"))
}

func TestPublicURLFallsBackToAmazonForm(t *testing.T) {
	s := &Store{cfg: Config{Bucket: "images", Region: "us-east-1"}}
	assert.Equal(t, "https://images.s3.us-east-1.amazonaws.com/users/u1/images/x.png", s.PublicURL("users/u1/images/x.png"))
}
