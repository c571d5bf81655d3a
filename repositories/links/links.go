package links

import (
	"context"
	"errors"
	"fmt"

	"activity/tracer"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"golang.org/x/oauth2"
)

// Schema creates the table the repository works on.
//language=SQL
const Schema = `
	CREATE TABLE IF NOT EXISTS activity_token_links(
		discord_id    TEXT PRIMARY KEY,
		access_token  TEXT NOT NULL,
		refresh_token TEXT NOT NULL,
		expiry        TIMESTAMPTZ NOT NULL
	);
`

type PostgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Link ties a Discord user to the OAuth token the activity obtained for them.
type Link struct {
	DiscordID string
	Token     *oauth2.Token
}

var ErrUserNotRegistered = errors.New("user is not registered")

func (rp *PostgresRepository) Migrate(ctx context.Context) error {
	ctx, childSpan := tracer.Start(ctx, "repositories.links.migrate")
	defer childSpan.End()

	if _, err := rp.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (rp *PostgresRepository) GetLinks(
	ctx context.Context,
) ([]Link, error) {
	ctx, childSpan := tracer.Start(ctx, "repositories.links.get_links")
	defer childSpan.End()

	//language=SQL
	sql := "SELECT discord_id, access_token, refresh_token, expiry FROM activity_token_links;"
	r, err := rp.db.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	links := []Link{}
	for r.Next() {
		data := Link{
			Token: &oauth2.Token{
				TokenType: "Bearer",
			},
		}
		err = r.Scan(
			&data.DiscordID,
			&data.Token.AccessToken,
			&data.Token.RefreshToken,
			&data.Token.Expiry,
		)
		if err != nil {
			return nil, err
		}
		links = append(links, data)
	}

	if err := r.Err(); err != nil {
		return nil, err
	}

	return links, nil
}

func (rp *PostgresRepository) GetLinkByDiscordID(
	ctx context.Context,
	discordID string,
) (*Link, error) {
	ctx, childSpan := tracer.Start(ctx, "repositories.links.get_link_by_discord_id")
	defer childSpan.End()

	//language=SQL
	sql := "SELECT discord_id, access_token, refresh_token, expiry FROM activity_token_links WHERE discord_id=$1 LIMIT 1;"
	row := rp.db.QueryRow(ctx, sql, discordID)

	data := Link{
		Token: &oauth2.Token{
			TokenType: "Bearer",
		},
	}

	err := row.Scan(
		&data.DiscordID,
		&data.Token.AccessToken,
		&data.Token.RefreshToken,
		&data.Token.Expiry,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotRegistered
		}
		return nil, err
	}

	return &data, nil
}

func (rp *PostgresRepository) UpsertLink(
	ctx context.Context,
	link Link,
) error {
	ctx, childSpan := tracer.Start(ctx, "repositories.links.upsert_link")
	defer childSpan.End()

	//language=SQL
	sql := `
		INSERT INTO activity_token_links(
			discord_id,
			access_token,
			refresh_token,
			expiry
		) VALUES($1, $2, $3, $4)
		ON CONFLICT(discord_id) DO UPDATE
			SET access_token=$2, refresh_token=$3, expiry=$4;
		`

	_, err := rp.db.Exec(
		ctx,
		sql,
		link.DiscordID,
		link.Token.AccessToken,
		link.Token.RefreshToken,
		link.Token.Expiry,
	)

	return err
}
