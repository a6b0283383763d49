package service

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/event-ticketing/internal/model"
)

const proofIssuer = "event-ticketing/proof"

// Proof is the opaque entry credential handed to a buyer.
type Proof struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ProofClaims is what a verified proof binds together.
type ProofClaims struct {
	TicketID   string
	EventID    uint64
	SeatNumber int
	BuyerID    uint64
	ExpiresAt  time.Time
}

type proofJWT struct {
	TicketID string `json:"tid"`
	EventID  uint64 `json:"eid"`
	Seat     int    `json:"seat"`
	jwt.RegisteredClaims
}

// ProofIssuer signs and verifies ticket proofs as HS256 JWTs. A proof
// cannot be forged without the secret and is bound to one ticket, event,
// seat and buyer.
type ProofIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewProofIssuer returns an issuer signing with secret. Proofs expire
// after ttl.
func NewProofIssuer(secret string, ttl time.Duration) *ProofIssuer {
	return &ProofIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a proof for t.
func (p *ProofIssuer) Issue(t *model.Ticket) (Proof, error) {
	if t == nil || t.ID == "" {
		return Proof{}, errors.New("issue proof: ticket has no id")
	}
	now := p.now()
	exp := now.Add(p.ttl)
	claims := proofJWT{
		TicketID: t.ID,
		EventID:  t.EventID,
		Seat:     t.SeatNumber,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    proofIssuer,
			Subject:   strconv.FormatUint(t.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return Proof{}, fmt.Errorf("sign proof: %w", err)
	}
	return Proof{Token: signed, ExpiresAt: exp.Truncate(time.Second)}, nil
}

// Redeem verifies token and returns its claims. Any failure, whether a
// bad signature, expiry or malformed claims, yields ErrInvalidOrExpiredProof.
func (p *ProofIssuer) Redeem(token string) (ProofClaims, error) {
	var claims proofJWT
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(proofIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return ProofClaims{}, fmt.Errorf("%w: %v", model.ErrInvalidOrExpiredProof, err)
	}
	buyer, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || claims.TicketID == "" || claims.EventID == 0 || claims.Seat < 1 {
		return ProofClaims{}, model.ErrInvalidOrExpiredProof
	}
	return ProofClaims{
		TicketID:   claims.TicketID,
		EventID:    claims.EventID,
		SeatNumber: claims.Seat,
		BuyerID:    buyer,
		ExpiresAt:  claims.ExpiresAt.Time,
	}, nil
}
