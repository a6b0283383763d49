package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-ticketing/internal/model"
)

func TestProofIssuer_RoundTrip(t *testing.T) {
	p := NewProofIssuer("secret", 2*time.Hour)
	ticket := &model.Ticket{ID: "8a3c", EventID: 4, UserID: 12, SeatNumber: 33}

	proof, err := p.Issue(ticket)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), proof.ExpiresAt, 2*time.Second)

	claims, err := p.Redeem(proof.Token)
	require.NoError(t, err)
	assert.Equal(t, ProofClaims{
		TicketID:   "8a3c",
		EventID:    4,
		SeatNumber: 33,
		BuyerID:    12,
		ExpiresAt:  claims.ExpiresAt,
	}, claims)
}

func TestProofIssuer_Expired(t *testing.T) {
	p := NewProofIssuer("secret", time.Hour)
	issuedAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return issuedAt }

	proof, err := p.Issue(&model.Ticket{ID: "t1", EventID: 1, UserID: 1, SeatNumber: 1})
	require.NoError(t, err)

	p.now = func() time.Time { return issuedAt.Add(2 * time.Hour) }
	_, err = p.Redeem(proof.Token)
	assert.ErrorIs(t, err, model.ErrInvalidOrExpiredProof)
}

func TestProofIssuer_RejectsForeignTokens(t *testing.T) {
	p := NewProofIssuer("secret", time.Hour)

	sign := func(method jwt.SigningMethod, key interface{}, claims jwt.Claims) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))

	tests := map[string]string{
		"garbage": "not-a-jwt",
		"unsigned": sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, proofJWT{
			TicketID: "t", EventID: 1, Seat: 1,
			RegisteredClaims: jwt.RegisteredClaims{Issuer: proofIssuer, Subject: "1", ExpiresAt: exp},
		}),
		"access token shape": sign(jwt.SigningMethodHS256, []byte("secret"), jwt.MapClaims{
			"sub": 1, "role": "ATTENDEE", "exp": exp.Unix(),
		}),
		"no expiry": sign(jwt.SigningMethodHS256, []byte("secret"), proofJWT{
			TicketID: "t", EventID: 1, Seat: 1,
			RegisteredClaims: jwt.RegisteredClaims{Issuer: proofIssuer, Subject: "1"},
		}),
		"missing seat": sign(jwt.SigningMethodHS256, []byte("secret"), proofJWT{
			TicketID: "t", EventID: 1,
			RegisteredClaims: jwt.RegisteredClaims{Issuer: proofIssuer, Subject: "1", ExpiresAt: exp},
		}),
	}

	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := p.Redeem(token)
			assert.ErrorIs(t, err, model.ErrInvalidOrExpiredProof)
		})
	}
}

func TestProofIssuer_IssueRequiresTicketID(t *testing.T) {
	_, err := NewProofIssuer("secret", time.Hour).Issue(&model.Ticket{})
	assert.Error(t, err)
}
