package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// Message kind tags. One typed schema per kind; a payload that does not match
// its schema is rejected, never default-filled.
const (
	KindLogin             = "login"
	KindLoginResult       = "login-result"
	KindRegister          = "register"
	KindRegisterResult    = "register-result"
	KindChatSend          = "chat-send"
	KindChatBroadcast     = "chat-broadcast"
	KindEnterGroup        = "enter-group"
	KindLeaveGroup        = "leave-group"
	KindCreateGroup       = "create-group"
	KindCreateGroupResult = "create-group-result"
	KindListUsers         = "list-users"
	KindUserList          = "user-list"
	KindListGroups        = "list-groups"
	KindGroupList         = "group-list"
	KindHistoryItem       = "history-item"
	KindHistoryComplete   = "history-complete"
	KindFileUpload        = "file-upload"
	KindFileUploadResult  = "file-upload-result"
	KindFileDownload      = "file-download"
	KindFileChunk         = "file-chunk"
	KindAIRequest         = "ai-request"
	KindAIResponse        = "ai-response"
	KindAdminAdd          = "admin-add"
	KindAdminDel          = "admin-del"
	KindAdminModify       = "admin-modify"
	KindAdminBan          = "admin-ban"
	KindAdminFree         = "admin-free"
	KindOk                = "ok"
	KindError             = "error"
)

// Error codes carried by Error messages.
const (
	CodeDecode     = "DECODE"
	CodeAuth       = "AUTH"
	CodePermission = "PERMISSION"
	CodeNotFound   = "NOT_FOUND"
	CodeTimeout    = "TIMEOUT"
	CodeBanned     = "BANNED"
	CodeInternal   = "INTERNAL"
)

type DecodeReason int

const (
	// UnknownKind means the kind tag is not in the registry.
	UnknownKind DecodeReason = iota
	// Malformed means a known kind whose payload is missing or mistypes a
	// required field.
	Malformed
)

type DecodeError struct {
	Reason DecodeReason
	Kind   string
	Err    error
}

func (e *DecodeError) Error() string {
	switch e.Reason {
	case UnknownKind:
		return fmt.Sprintf("unknown message kind %q", e.Kind)
	default:
		return fmt.Sprintf("malformed %q message: %v", e.Kind, e.Err)
	}
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Envelope carries the fields every message has.
type Envelope struct {
	Kind string `json:"kind"`
	TS   int64  `json:"ts"`
}

func (e Envelope) MessageKind() string { return e.Kind }

// Env stamps a fresh envelope for an outgoing message.
func Env(kind string) Envelope {
	return Envelope{Kind: kind, TS: time.Now().UnixMilli()}
}

// Message is one typed wire value.
type Message interface {
	MessageKind() string
	Validate() error
}

type Login struct {
	Envelope
	Username string `json:"username"`
	Password string `json:"password"`
}

func (m *Login) Validate() error {
	if m.Username == "" || m.Password == "" {
		return errors.New("username and password are required")
	}
	return nil
}

type LoginResult struct {
	Envelope
	OK       bool   `json:"ok"`
	UserID   int64  `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	IsAdmin  bool   `json:"is_admin,omitempty"`
	Token    string `json:"token,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func (m *LoginResult) Validate() error { return nil }

type Register struct {
	Envelope
	Username string `json:"username"`
	Password string `json:"password"`
}

func (m *Register) Validate() error {
	if m.Username == "" || m.Password == "" {
		return errors.New("username and password are required")
	}
	return nil
}

type RegisterResult struct {
	Envelope
	OK     bool   `json:"ok"`
	UserID int64  `json:"user_id,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (m *RegisterResult) Validate() error { return nil }

type ChatSend struct {
	Envelope
	GroupID int64  `json:"group_id"`
	Body    string `json:"body"`
}

func (m *ChatSend) Validate() error {
	if m.GroupID == 0 {
		return errors.New("group_id is required")
	}
	if m.Body == "" {
		return errors.New("body is required")
	}
	return nil
}

type ChatBroadcast struct {
	Envelope
	GroupID    int64  `json:"group_id"`
	GroupName  string `json:"group_name,omitempty"`
	SenderID   int64  `json:"sender_id"`
	SenderName string `json:"sender_name"`
	Body       string `json:"body"`
}

func (m *ChatBroadcast) Validate() error {
	if m.GroupID == 0 {
		return errors.New("group_id is required")
	}
	return nil
}

type EnterGroup struct {
	Envelope
	GroupID int64 `json:"group_id"`
}

func (m *EnterGroup) Validate() error {
	if m.GroupID == 0 {
		return errors.New("group_id is required")
	}
	return nil
}

type LeaveGroup struct {
	Envelope
	GroupID int64 `json:"group_id"`
}

func (m *LeaveGroup) Validate() error {
	if m.GroupID == 0 {
		return errors.New("group_id is required")
	}
	return nil
}

type CreateGroup struct {
	Envelope
	Name    string   `json:"name"`
	Members []string `json:"members,omitempty"`
	Private bool     `json:"private,omitempty"`
}

func (m *CreateGroup) Validate() error {
	if m.Name == "" {
		return errors.New("name is required")
	}
	if m.Private && len(m.Members) != 1 {
		return errors.New("a private group names exactly one other member")
	}
	return nil
}

type CreateGroupResult struct {
	Envelope
	OK      bool   `json:"ok"`
	GroupID int64  `json:"group_id,omitempty"`
	Name    string `json:"name,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func (m *CreateGroupResult) Validate() error { return nil }

type ListUsers struct {
	Envelope
}

func (m *ListUsers) Validate() error { return nil }

type UserInfo struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Online bool   `json:"online"`
}

type UserList struct {
	Envelope
	Users []UserInfo `json:"users"`
}

func (m *UserList) Validate() error { return nil }

type ListGroups struct {
	Envelope
}

func (m *ListGroups) Validate() error { return nil }

type GroupInfo struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Private bool   `json:"private"`
	Members int    `json:"members"`
}

type GroupList struct {
	Envelope
	Public []GroupInfo `json:"public"`
	Joined []GroupInfo `json:"joined"`
}

func (m *GroupList) Validate() error { return nil }

type HistoryItem struct {
	Envelope
	// GroupID lets the client attribute the item even before its own
	// current-group state catches up with an enter-group reply.
	GroupID    int64  `json:"group_id"`
	MessageID  int64  `json:"message_id"`
	SenderID   int64  `json:"sender_id"`
	SenderName string `json:"sender_name"`
	Body       string `json:"body"`
	SentAt     int64  `json:"sent_at"`
}

func (m *HistoryItem) Validate() error {
	if m.GroupID == 0 {
		return errors.New("group_id is required")
	}
	return nil
}

type HistoryComplete struct {
	Envelope
	GroupID int64 `json:"group_id"`
	Count   int   `json:"count"`
}

func (m *HistoryComplete) Validate() error {
	if m.GroupID == 0 {
		return errors.New("group_id is required")
	}
	return nil
}

type FileUpload struct {
	Envelope
	GroupID int64  `json:"group_id"`
	Name    string `json:"name"`
	Data    []byte `json:"data"`
}

func (m *FileUpload) Validate() error {
	if m.GroupID == 0 || m.Name == "" {
		return errors.New("group_id and name are required")
	}
	if len(m.Data) == 0 {
		return errors.New("data is required")
	}
	return nil
}

type FileUploadResult struct {
	Envelope
	OK     bool   `json:"ok"`
	FileID string `json:"file_id,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (m *FileUploadResult) Validate() error { return nil }

type FileDownload struct {
	Envelope
	FileID string `json:"file_id"`
}

func (m *FileDownload) Validate() error {
	if m.FileID == "" {
		return errors.New("file_id is required")
	}
	return nil
}

type FileChunk struct {
	Envelope
	FileID string `json:"file_id"`
	Name   string `json:"name"`
	Data   []byte `json:"data"`
	Last   bool   `json:"last"`
}

func (m *FileChunk) Validate() error {
	if m.FileID == "" {
		return errors.New("file_id is required")
	}
	return nil
}

type AIRequest struct {
	Envelope
	GroupID int64  `json:"group_id"`
	Prompt  string `json:"prompt"`
}

func (m *AIRequest) Validate() error {
	if m.Prompt == "" {
		return errors.New("prompt is required")
	}
	return nil
}

type AIResponse struct {
	Envelope
	GroupID int64  `json:"group_id,omitempty"`
	Reply   string `json:"reply"`
}

func (m *AIResponse) Validate() error { return nil }

type AdminAdd struct {
	Envelope
	Username string `json:"username"`
	Password string `json:"password"`
	IsAdmin  bool   `json:"is_admin,omitempty"`
}

func (m *AdminAdd) Validate() error {
	if m.Username == "" || m.Password == "" {
		return errors.New("username and password are required")
	}
	return nil
}

type AdminDel struct {
	Envelope
	Username string `json:"username"`
}

func (m *AdminDel) Validate() error {
	if m.Username == "" {
		return errors.New("username is required")
	}
	return nil
}

type AdminModify struct {
	Envelope
	Username string `json:"username"`
	Password string `json:"password"`
}

func (m *AdminModify) Validate() error {
	if m.Username == "" || m.Password == "" {
		return errors.New("username and password are required")
	}
	return nil
}

type AdminBan struct {
	Envelope
	Username string `json:"username"`
}

func (m *AdminBan) Validate() error {
	if m.Username == "" {
		return errors.New("username is required")
	}
	return nil
}

type AdminFree struct {
	Envelope
	Username string `json:"username"`
}

func (m *AdminFree) Validate() error {
	if m.Username == "" {
		return errors.New("username is required")
	}
	return nil
}

type Ok struct {
	Envelope
	Op     string `json:"op"`
	Detail string `json:"detail,omitempty"`
}

func (m *Ok) Validate() error { return nil }

type Error struct {
	Envelope
	Code    string `json:"code"`
	Message string `json:"message"`
	Op      string `json:"op,omitempty"`
}

func (m *Error) Validate() error {
	if m.Code == "" {
		return errors.New("code is required")
	}
	return nil
}

// registry maps a kind tag to a factory for its typed schema. Populated once
// at init; read-only afterwards, so no locking is needed.
var registry = map[string]func() Message{}

func register(kind string, factory func() Message) {
	if _, exists := registry[kind]; exists {
		panic("message kind already registered: " + kind)
	}
	registry[kind] = factory
}

func init() {
	register(KindLogin, func() Message { return &Login{} })
	register(KindLoginResult, func() Message { return &LoginResult{} })
	register(KindRegister, func() Message { return &Register{} })
	register(KindRegisterResult, func() Message { return &RegisterResult{} })
	register(KindChatSend, func() Message { return &ChatSend{} })
	register(KindChatBroadcast, func() Message { return &ChatBroadcast{} })
	register(KindEnterGroup, func() Message { return &EnterGroup{} })
	register(KindLeaveGroup, func() Message { return &LeaveGroup{} })
	register(KindCreateGroup, func() Message { return &CreateGroup{} })
	register(KindCreateGroupResult, func() Message { return &CreateGroupResult{} })
	register(KindListUsers, func() Message { return &ListUsers{} })
	register(KindUserList, func() Message { return &UserList{} })
	register(KindListGroups, func() Message { return &ListGroups{} })
	register(KindGroupList, func() Message { return &GroupList{} })
	register(KindHistoryItem, func() Message { return &HistoryItem{} })
	register(KindHistoryComplete, func() Message { return &HistoryComplete{} })
	register(KindFileUpload, func() Message { return &FileUpload{} })
	register(KindFileUploadResult, func() Message { return &FileUploadResult{} })
	register(KindFileDownload, func() Message { return &FileDownload{} })
	register(KindFileChunk, func() Message { return &FileChunk{} })
	register(KindAIRequest, func() Message { return &AIRequest{} })
	register(KindAIResponse, func() Message { return &AIResponse{} })
	register(KindAdminAdd, func() Message { return &AdminAdd{} })
	register(KindAdminDel, func() Message { return &AdminDel{} })
	register(KindAdminModify, func() Message { return &AdminModify{} })
	register(KindAdminBan, func() Message { return &AdminBan{} })
	register(KindAdminFree, func() Message { return &AdminFree{} })
	register(KindOk, func() Message { return &Ok{} })
	register(KindError, func() Message { return &Error{} })
}

// Decode turns a payload into its typed message. The kind tag is peeked with
// gjson before committing to a schema.
func Decode(payload []byte) (Message, *DecodeError) {
	kind := gjson.GetBytes(payload, "kind")
	if !kind.Exists() || kind.Type != gjson.String {
		return nil, &DecodeError{Reason: Malformed, Err: errors.New("missing kind tag")}
	}
	factory, ok := registry[kind.String()]
	if !ok {
		return nil, &DecodeError{Reason: UnknownKind, Kind: kind.String()}
	}
	msg := factory()
	if err := json.Unmarshal(payload, msg); err != nil {
		return nil, &DecodeError{Reason: Malformed, Kind: kind.String(), Err: err}
	}
	if err := msg.Validate(); err != nil {
		return nil, &DecodeError{Reason: Malformed, Kind: kind.String(), Err: err}
	}
	return msg, nil
}

// EncodeMessage serializes a typed message to its payload bytes.
func EncodeMessage(msg Message) ([]byte, error) {
	if msg.MessageKind() == "" {
		return nil, errors.New("message has no kind tag; build it with wire.Env")
	}
	if _, ok := registry[msg.MessageKind()]; !ok {
		return nil, fmt.Errorf("message kind %q is not registered", msg.MessageKind())
	}
	return json.Marshal(msg)
}

// NewError is the typed rejection every recoverable per-connection failure
// answers with.
func NewError(code, message, op string) *Error {
	return &Error{Envelope: Env(KindError), Code: code, Message: message, Op: op}
}
