package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"virucide/internal/models"
)

// GetUserByID loads the profile slice the session engine needs.
func GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	q := `
	SELECT id, username, coins, wins, losses, playtime_mins
	FROM users
	WHERE id=$1
	`
	err := DB.QueryRow(ctx, q, id).Scan(
		&u.ID, &u.Username, &u.Coins, &u.Wins, &u.Losses, &u.PlaytimeMins,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", id, err)
	}
	return &u, nil
}

// ApplyMatchResult credits one player's outcome: coin reward, win/loss
// tally and playtime.
func ApplyMatchResult(ctx context.Context, userID uuid.UUID, coins int, won bool, playtimeMins int) error {
	wins, losses := 0, 1
	if won {
		wins, losses = 1, 0
	}

	q := `
	UPDATE users
	SET coins = coins + $2,
	    wins = wins + $3,
	    losses = losses + $4,
	    playtime_mins = playtime_mins + $5
	WHERE id = $1
	`
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, q, userID, coins, wins, losses, playtimeMins)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to apply match result for %s: %w", userID, err)
	}
	return nil
}
