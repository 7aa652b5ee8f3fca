package database

import (
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/invitedesk/invite-dispatch-service/environments"
	"github.com/invitedesk/invite-dispatch-service/pkg/logger"
)

func NewMySQLDB(cfg environments.DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&collation=utf8mb4_unicode_ci",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName,
	)

	db, err := sqlx.Connect("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Infof("Connected to MySQL database")
	return db, nil
}

func RunMigrations(db *sqlx.DB) error {
	schemas := []string{
		`
		CREATE TABLE IF NOT EXISTS templates (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			body TEXT NOT NULL,
			language VARCHAR(10) NOT NULL DEFAULT 'en',
			approved BOOLEAN NOT NULL DEFAULT FALSE,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			UNIQUE KEY uq_templates_name (name)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
		`,
		`
		CREATE TABLE IF NOT EXISTS guests (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			event_id BIGINT NOT NULL,
			name VARCHAR(255) NOT NULL,
			phone_number VARCHAR(20) NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_guests_event (event_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
		`,
		`
		CREATE TABLE IF NOT EXISTS invitations (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			event_id BIGINT NOT NULL,
			guest_id BIGINT NOT NULL,
			recipient VARCHAR(20) NOT NULL,
			template_name VARCHAR(100) NOT NULL,
			rendered_content TEXT NOT NULL,
			variables TEXT,
			provider_message_id VARCHAR(100),
			provider_status VARCHAR(20) NOT NULL DEFAULT 'pending',
			error_code VARCHAR(20),
			error_message TEXT,
			retry_count INT NOT NULL DEFAULT 0,
			max_retries INT NOT NULL DEFAULT 3,
			next_retry_at DATETIME,
			sent_at DATETIME,
			delivered_at DATETIME,
			read_at DATETIME,
			failed_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			UNIQUE KEY uq_invitations_event_guest (event_id, guest_id),
			INDEX idx_invitations_provider_message (provider_message_id),
			INDEX idx_invitations_status (provider_status),
			INDEX idx_invitations_created_at (created_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
		`,
	}

	for _, schema := range schemas {
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	logger.Infof("Database migrations completed")

	return nil
}

func SeedTestData(db *sqlx.DB) error {
	var count int

	err := db.Get(&count, "SELECT COUNT(*) FROM templates")
	if err != nil {
		return err
	}

	if count > 0 {
		logger.Infof("Database already has %d templates, skipping seed", count)
		return nil
	}

	templates := []struct {
		name     string
		body     string
		approved bool
	}{
		{
			name:     "wedding_invite",
			body:     "Dear {{name}}, you are invited to {{event}} on {{date}} at {{venue}}. Please RSVP: {{rsvp_link}}",
			approved: true,
		},
		{
			name:     "save_the_date",
			body:     "Hi {{name}}! Save the date: {{event}} is happening on {{date}}. Invitation to follow.",
			approved: true,
		},
		{
			name:     "rsvp_reminder",
			body:     "Hi {{name}}, a gentle reminder to confirm your attendance for {{event}}: {{rsvp_link}}",
			approved: true,
		},
		{
			name:     "venue_update_draft",
			body:     "Hi {{name}}, the venue for {{event}} has changed to {{venue}}.",
			approved: false,
		},
	}

	for _, tpl := range templates {
		_, err := db.Exec(
			"INSERT INTO templates (name, body, language, approved) VALUES (?, ?, 'en', ?)",
			tpl.name, tpl.body, tpl.approved,
		)
		if err != nil {
			return fmt.Errorf("failed to seed templates: %w", err)
		}
	}

	guests := []struct {
		eventID     int64
		name        string
		phoneNumber string
	}{
		{1, "Ayşe Yılmaz", "+905551234567"},
		{1, "Mehmet Demir", "+905559876543"},
		{1, "Elif Kaya", "+905551112233"},
		{1, "Can Öztürk", "+905554445566"},
		{2, "Zeynep Arslan", "+905557778899"},
		{2, "Burak Şahin", "+905552223344"},
	}

	for _, guest := range guests {
		_, err := db.Exec(
			"INSERT INTO guests (event_id, name, phone_number) VALUES (?, ?, ?)",
			guest.eventID, guest.name, guest.phoneNumber,
		)
		if err != nil {
			return fmt.Errorf("failed to seed guests: %w", err)
		}
	}

	logger.Infof("Seeded %d templates and %d guests", len(templates), len(guests))
	return nil
}
