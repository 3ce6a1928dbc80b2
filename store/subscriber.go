package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Subscriber is a contact who receives carnival notifications for the
// states listed in States.
type Subscriber struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Email     string   `json:"email"`
	States    []string `json:"states"`
	Active    bool     `json:"isActive"`
	CreatedAt int64    `json:"createdAt"`
}

// InsertSubscriber adds a subscriber.
func (s *Store) InsertSubscriber(ctx context.Context, sub *Subscriber) error {
	if sub.CreatedAt == 0 {
		sub.CreatedAt = time.Now().UnixMilli()
	}
	if sub.States == nil {
		sub.States = []string{}
	}
	states, err := json.Marshal(sub.States)
	if err != nil {
		return fmt.Errorf("store: marshal states: %w", err)
	}
	_, err = exec(ctx, s.DB,
		`INSERT INTO subscribers (id, name, email, states, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.Name, sub.Email, string(states), sub.Active, sub.CreatedAt)
	return err
}

// ListSubscribers returns all subscribers, newest first.
func (s *Store) ListSubscribers(ctx context.Context) ([]*Subscriber, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, name, email, states, active, created_at
		FROM subscribers ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*Subscriber
	for rows.Next() {
		var sub Subscriber
		var states string
		if err := rows.Scan(&sub.ID, &sub.Name, &sub.Email, &states, &sub.Active, &sub.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(states), &sub.States); err != nil {
			sub.States = nil
		}
		subs = append(subs, &sub)
	}
	return subs, rows.Err()
}

// SubscribersForState returns active subscribers whose state preferences
// include the given state.
func (s *Store) SubscribersForState(ctx context.Context, state string) ([]*Subscriber, error) {
	all, err := s.ListSubscribers(ctx)
	if err != nil {
		return nil, err
	}
	var out []*Subscriber
	for _, sub := range all {
		if !sub.Active {
			continue
		}
		for _, st := range sub.States {
			if st == state {
				out = append(out, sub)
				break
			}
		}
	}
	return out, nil
}

// DeleteSubscriber removes a subscriber.
func (s *Store) DeleteSubscriber(ctx context.Context, id string) error {
	_, err := exec(ctx, s.DB, `DELETE FROM subscribers WHERE id = ?`, id)
	return err
}
