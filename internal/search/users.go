package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/elastic/go-elasticsearch/v9"

	"github.com/Skotchmaster/usersvc/internal/models"
)

const DefaultUserIndex = "users"

type userDoc struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// UserIndex stores public user fields. Password hashes never reach it.
type UserIndex struct {
	es    *elasticsearch.Client
	index string
}

func NewUserIndex(es *elasticsearch.Client, index string) *UserIndex {
	if index == "" {
		index = DefaultUserIndex
	}
	return &UserIndex{es: es, index: index}
}

func (ix *UserIndex) Index(ctx context.Context, u models.User) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(userDoc{ID: u.ID, Username: u.Username, Email: u.Email}); err != nil {
		return fmt.Errorf("es: encode user: %w", err)
	}

	res, err := ix.es.Index(
		ix.index,
		&buf,
		ix.es.Index.WithContext(ctx),
		ix.es.Index.WithDocumentID(strconv.FormatUint(uint64(u.ID), 10)),
	)
	if err != nil {
		return fmt.Errorf("es: index user: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("es: index user: %s: %s", res.Status(), body)
	}
	return nil
}

// Search matches query against username and email and returns the total hit
// count along with one page of users.
func (ix *UserIndex) Search(ctx context.Context, query string, from, size int) (int64, []models.User, error) {
	body := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":     query,
				"fields":    []string{"username^2", "email"},
				"fuzziness": "AUTO",
			},
		},
		"from": from,
		"size": size,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return 0, nil, fmt.Errorf("es: encode query: %w", err)
	}

	res, err := ix.es.Search(
		ix.es.Search.WithContext(ctx),
		ix.es.Search.WithIndex(ix.index),
		ix.es.Search.WithBody(&buf),
	)
	if err != nil {
		return 0, nil, fmt.Errorf("es: search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		return 0, nil, fmt.Errorf("es: search: %s: %s", res.Status(), raw)
	}

	var r struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source userDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return 0, nil, fmt.Errorf("es: decode response: %w", err)
	}

	users := make([]models.User, len(r.Hits.Hits))
	for i, hit := range r.Hits.Hits {
		users[i] = models.User{ID: hit.Source.ID, Username: hit.Source.Username, Email: hit.Source.Email}
	}
	return r.Hits.Total.Value, users, nil
}
