// Package catalog is a typed client for the loyalty catalog API plus a
// cache-backed browsing layer shared by the dialogue engine and the scheduler.
package catalog

import "errors"

// ErrUnavailable marks any failure of the external catalog service: transport
// errors, unexpected status codes, and malformed payloads all surface as this
// one condition.
var ErrUnavailable = errors.New("catalog unavailable")

// Shop is the minimal catalog shop record needed for matching and browsing.
type Shop struct {
	ID   int64
	Name string
	City string
}

// Product is the minimal catalog product record.
type Product struct {
	ID   int64
	Name string
}

type namedEntity struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type shopPayload struct {
	ID   int64        `json:"id"`
	Name string       `json:"name"`
	City *namedEntity `json:"city"`
}

type productPayload struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (p shopPayload) toShop() Shop {
	s := Shop{ID: p.ID, Name: p.Name}
	if p.City != nil {
		s.City = p.City.Name
	}
	return s
}
