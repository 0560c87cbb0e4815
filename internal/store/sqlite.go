package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("record not found")

// User is the persistent account record.
type User struct {
	ID           int64
	Name         string
	PasswordHash string
	IsAdmin      bool
	IsBanned     bool
	CreatedAt    time.Time
}

type Group struct {
	ID        int64
	Name      string
	Private   bool
	CreatedAt time.Time
}

type Message struct {
	ID         int64
	GroupID    int64
	SenderID   int64
	SenderName string
	Body       string
	CreatedAt  time.Time
}

type FileRecord struct {
	ID        string
	GroupID   int64
	SenderID  int64
	Name      string
	Path      string
	Size      int64
	CreatedAt time.Time
}

// Database handles SQLite operations for accounts, groups, message history
// and file records.
type Database struct {
	db     *sql.DB
	dbPath string
}

// NewDatabase opens (and if needed creates) the database at dbPath.
func NewDatabase(dbPath string) (*Database, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	database := &Database{db: db, dbPath: dbPath}

	if err := database.migrate(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return database, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		is_admin BOOLEAN NOT NULL DEFAULT FALSE,
		is_banned BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS groups (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		is_private BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS group_members (
		group_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		PRIMARY KEY (group_id, user_id),
		FOREIGN KEY (group_id) REFERENCES groups(id),
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		group_id INTEGER NOT NULL,
		sender_id INTEGER NOT NULL,
		body TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (group_id) REFERENCES groups(id),
		FOREIGN KEY (sender_id) REFERENCES users(id)
	);

	CREATE INDEX IF NOT EXISTS idx_messages_group ON messages(group_id, id);

	CREATE TABLE IF NOT EXISTS files (
		id TEXT PRIMARY KEY,
		group_id INTEGER NOT NULL,
		sender_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		path TEXT NOT NULL,
		size INTEGER NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (group_id) REFERENCES groups(id),
		FOREIGN KEY (sender_id) REFERENCES users(id)
	);
	`
	if _, err := d.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// --- Users ---

func (d *Database) CreateUser(name, passwordHash string, isAdmin bool) (int64, error) {
	res, err := d.db.Exec(
		"INSERT INTO users (name, password_hash, is_admin) VALUES (?, ?, ?)",
		name, passwordHash, isAdmin,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create user %q: %w", name, err)
	}
	return res.LastInsertId()
}

func (d *Database) UserByName(name string) (*User, error) {
	return d.scanUser(d.db.QueryRow(
		"SELECT id, name, password_hash, is_admin, is_banned, created_at FROM users WHERE name = ?",
		name,
	))
}

func (d *Database) UserByID(id int64) (*User, error) {
	return d.scanUser(d.db.QueryRow(
		"SELECT id, name, password_hash, is_admin, is_banned, created_at FROM users WHERE id = ?",
		id,
	))
}

func (d *Database) scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.PasswordHash, &u.IsAdmin, &u.IsBanned, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (d *Database) UpdatePassword(userID int64, passwordHash string) error {
	return d.execOne("UPDATE users SET password_hash = ? WHERE id = ?", passwordHash, userID)
}

func (d *Database) SetBanned(userID int64, banned bool) error {
	return d.execOne("UPDATE users SET is_banned = ? WHERE id = ?", banned, userID)
}

// DeleteUser removes the account together with everything referencing it.
// Messages and file records carry foreign keys to users, so they go in the
// same transaction or the user row cannot be deleted at all.
func (d *Database) DeleteUser(userID int64) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, query := range []string{
		"DELETE FROM messages WHERE sender_id = ?",
		"DELETE FROM files WHERE sender_id = ?",
		"DELETE FROM group_members WHERE user_id = ?",
	} {
		if _, err := tx.Exec(query, userID); err != nil {
			return err
		}
	}
	res, err := tx.Exec("DELETE FROM users WHERE id = ?", userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

func (d *Database) execOne(query string, args ...any) error {
	res, err := d.db.Exec(query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Groups ---

func (d *Database) CreateGroup(name string, private bool, memberIDs []int64) (int64, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec("INSERT INTO groups (name, is_private) VALUES (?, ?)", name, private)
	if err != nil {
		return 0, fmt.Errorf("failed to create group %q: %w", name, err)
	}
	groupID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	for _, uid := range memberIDs {
		if _, err := tx.Exec(
			"INSERT INTO group_members (group_id, user_id) VALUES (?, ?)",
			groupID, uid,
		); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return groupID, nil
}

func (d *Database) AddMember(groupID, userID int64) error {
	_, err := d.db.Exec(
		"INSERT OR IGNORE INTO group_members (group_id, user_id) VALUES (?, ?)",
		groupID, userID,
	)
	return err
}

func (d *Database) RemoveMember(groupID, userID int64) error {
	_, err := d.db.Exec(
		"DELETE FROM group_members WHERE group_id = ? AND user_id = ?",
		groupID, userID,
	)
	return err
}

func (d *Database) IsMember(groupID, userID int64) (bool, error) {
	var one int
	err := d.db.QueryRow(
		"SELECT 1 FROM group_members WHERE group_id = ? AND user_id = ?",
		groupID, userID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// AllGroups returns every group together with its member ids; used to warm
// the in-memory directory at startup.
func (d *Database) AllGroups() ([]Group, map[int64][]int64, error) {
	rows, err := d.db.Query("SELECT id, name, is_private, created_at FROM groups")
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Private, &g.CreatedAt); err != nil {
			return nil, nil, err
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	members := make(map[int64][]int64)
	mrows, err := d.db.Query("SELECT group_id, user_id FROM group_members")
	if err != nil {
		return nil, nil, err
	}
	defer mrows.Close()
	for mrows.Next() {
		var gid, uid int64
		if err := mrows.Scan(&gid, &uid); err != nil {
			return nil, nil, err
		}
		members[gid] = append(members[gid], uid)
	}
	return groups, members, mrows.Err()
}

// --- Messages ---

func (d *Database) AppendMessage(groupID, senderID int64, body string) (int64, error) {
	res, err := d.db.Exec(
		"INSERT INTO messages (group_id, sender_id, body) VALUES (?, ?, ?)",
		groupID, senderID, body,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to append message: %w", err)
	}
	return res.LastInsertId()
}

// History returns up to limit most recent messages of a group in
// chronological order.
func (d *Database) History(groupID int64, limit int) ([]Message, error) {
	rows, err := d.db.Query(`
		SELECT m.id, m.group_id, m.sender_id, u.name, m.body, m.created_at
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.group_id = ?
		ORDER BY m.id DESC
		LIMIT ?`,
		groupID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.GroupID, &m.SenderID, &m.SenderName, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// --- Files ---

func (d *Database) CreateFileRecord(rec FileRecord) error {
	_, err := d.db.Exec(
		"INSERT INTO files (id, group_id, sender_id, name, path, size) VALUES (?, ?, ?, ?, ?, ?)",
		rec.ID, rec.GroupID, rec.SenderID, rec.Name, rec.Path, rec.Size,
	)
	if err != nil {
		return fmt.Errorf("failed to create file record: %w", err)
	}
	return nil
}

func (d *Database) FileRecord(id string) (*FileRecord, error) {
	var rec FileRecord
	err := d.db.QueryRow(
		"SELECT id, group_id, sender_id, name, path, size, created_at FROM files WHERE id = ?",
		id,
	).Scan(&rec.ID, &rec.GroupID, &rec.SenderID, &rec.Name, &rec.Path, &rec.Size, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
