package mongo

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainchat "nestly/internal/domain/chat"
)

// ChatStore persists conversations and messages in two collections. Both
// documents are keyed by a client-generated UUID string; the message
// collection carries a compound (conversation_id, created_at desc) index for
// the thread listing path.
type ChatStore struct {
	conversations *mongo.Collection
	messages      *mongo.Collection
}

func NewChatStore(db *mongo.Database) *ChatStore {
	s := &ChatStore{
		conversations: db.Collection("conversations"),
		messages:      db.Collection("messages"),
	}
	_, _ = s.messages.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	_, _ = s.conversations.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys: bson.D{{Key: "participants", Value: 1}, {Key: "last_activity_at", Value: -1}},
	})
	return s
}

func (s *ChatStore) CreateConversation(ctx context.Context, conv *domainchat.Conversation) (*domainchat.Conversation, error) {
	doc := newConversationDocument(conv)
	doc.ID = uuid.NewString()
	if doc.StartedAt == 0 {
		doc.StartedAt = time.Now().UTC().UnixMilli()
	}
	// Message-less conversations sort by their start time, matching the
	// other stores' activity fallback.
	doc.LastActivityAt = doc.LastMessageAt
	if doc.LastActivityAt == 0 {
		doc.LastActivityAt = doc.StartedAt
	}
	if _, err := s.conversations.InsertOne(ctx, doc); err != nil {
		return nil, err
	}
	return doc.toConversation(), nil
}

func (s *ChatStore) GetConversation(ctx context.Context, id string) (*domainchat.Conversation, error) {
	var doc conversationDocument
	if err := s.conversations.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainchat.ErrConversationNotFound
		}
		return nil, err
	}
	return doc.toConversation(), nil
}

func (s *ChatStore) ListConversations(ctx context.Context, filter domainchat.ConversationFilter) ([]domainchat.Conversation, int, error) {
	query := bson.M{}
	if filter.UserID != "" {
		query["$or"] = []bson.M{
			{"initiator_id": filter.UserID},
			{"participants": filter.UserID},
		}
	}
	if filter.Type != "" {
		query["type"] = string(filter.Type)
	}
	if filter.Status != "" {
		query["status"] = string(filter.Status)
	}
	if filter.Search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(filter.Search), Options: "i"}
		query["$and"] = []bson.M{{"$or": []bson.M{
			{"subject": pattern},
			{"last_message_preview": pattern},
			{"initiator_name": pattern},
		}}}
	}

	total, err := s.conversations.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "last_activity_at", Value: -1}})
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	cur, err := s.conversations.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)

	out := make([]domainchat.Conversation, 0)
	for cur.Next(ctx) {
		var doc conversationDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, 0, err
		}
		out = append(out, *doc.toConversation())
	}
	if err := cur.Err(); err != nil {
		return nil, 0, err
	}
	return out, int(total), nil
}

func (s *ChatStore) UpdateConversation(ctx context.Context, id string, patch domainchat.ConversationPatch) (*domainchat.Conversation, error) {
	set := bson.M{}
	if patch.Status != nil {
		set["status"] = string(*patch.Status)
	}
	if patch.LastMessagePreview != nil {
		set["last_message_preview"] = *patch.LastMessagePreview
	}
	if patch.LastMessageAt != nil {
		set["last_message_at"] = patch.LastMessageAt.UnixMilli()
		set["last_activity_at"] = patch.LastMessageAt.UnixMilli()
	}
	if patch.LastMessageBy != nil {
		set["last_message_by"] = *patch.LastMessageBy
	}
	if patch.TotalMessages != nil {
		set["total_messages"] = *patch.TotalMessages
	}
	if patch.UnreadCount != nil {
		set["unread_count"] = *patch.UnreadCount
	}
	if patch.IsStarred != nil {
		set["is_starred"] = *patch.IsStarred
	}
	if patch.IsMuted != nil {
		set["is_muted"] = *patch.IsMuted
	}
	if patch.ArchivedAt != nil {
		set["archived_at"] = patch.ArchivedAt.UnixMilli()
	}
	res := s.conversations.FindOneAndUpdate(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	var doc conversationDocument
	if err := res.Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainchat.ErrConversationNotFound
		}
		return nil, err
	}
	return doc.toConversation(), nil
}

func (s *ChatStore) CreateMessage(ctx context.Context, msg *domainchat.Message) (*domainchat.Message, error) {
	doc := newMessageDocument(msg)
	doc.ID = uuid.NewString()
	if doc.CreatedAt == 0 {
		doc.CreatedAt = time.Now().UTC().UnixMilli()
	}
	if _, err := s.messages.InsertOne(ctx, doc); err != nil {
		return nil, err
	}
	return doc.toMessage(), nil
}

func (s *ChatStore) GetMessage(ctx context.Context, id string) (*domainchat.Message, error) {
	var doc messageDocument
	if err := s.messages.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainchat.ErrMessageNotFound
		}
		return nil, err
	}
	return doc.toMessage(), nil
}

func (s *ChatStore) ListMessages(ctx context.Context, filter domainchat.MessageFilter) ([]domainchat.Message, error) {
	query := bson.M{}
	if filter.ConversationID != "" {
		query["conversation_id"] = filter.ConversationID
	}
	if !filter.IncludeDeleted {
		query["is_deleted"] = bson.M{"$ne": true}
	}
	if !filter.Before.IsZero() {
		query["created_at"] = bson.M{"$lt": filter.Before.UnixMilli()}
	}
	if filter.SenderNot != "" {
		query["sender_id"] = bson.M{"$ne": filter.SenderNot}
	}
	if filter.StatusNot != "" {
		query["status"] = bson.M{"$ne": string(filter.StatusNot)}
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	cur, err := s.messages.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]domainchat.Message, 0)
	for cur.Next(ctx) {
		var doc messageDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, *doc.toMessage())
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ChatStore) UpdateMessage(ctx context.Context, id string, patch domainchat.MessagePatch) (*domainchat.Message, error) {
	set := bson.M{}
	if patch.Content != nil {
		set["content"] = *patch.Content
	}
	if patch.Status != nil {
		set["status"] = string(*patch.Status)
	}
	if patch.ReadBy != nil {
		set["read_by"] = *patch.ReadBy
	}
	if patch.IsEdited != nil {
		set["is_edited"] = *patch.IsEdited
	}
	if patch.EditedAt != nil {
		set["edited_at"] = patch.EditedAt.UnixMilli()
	}
	if patch.IsDeleted != nil {
		set["is_deleted"] = *patch.IsDeleted
	}
	res := s.messages.FindOneAndUpdate(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	var doc messageDocument
	if err := res.Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainchat.ErrMessageNotFound
		}
		return nil, err
	}
	return doc.toMessage(), nil
}

type conversationDocument struct {
	ID                 string   `bson:"_id"`
	ReferenceCode      string   `bson:"reference_code"`
	InitiatorID        string   `bson:"initiator_id"`
	InitiatorName      string   `bson:"initiator_name"`
	InitiatorRole      string   `bson:"initiator_role"`
	Participants       []string `bson:"participants"`
	Type               string   `bson:"type"`
	Subject            string   `bson:"subject"`
	PropertyID         string   `bson:"property_id,omitempty"`
	PropertyTitle      string   `bson:"property_title,omitempty"`
	Status             string   `bson:"status"`
	LastMessagePreview string   `bson:"last_message_preview"`
	LastMessageAt      int64    `bson:"last_message_at"`
	LastMessageBy      string   `bson:"last_message_by"`
	LastActivityAt     int64    `bson:"last_activity_at"`
	TotalMessages      int      `bson:"total_messages"`
	UnreadCount        int      `bson:"unread_count"`
	IsStarred          bool     `bson:"is_starred"`
	IsMuted            bool     `bson:"is_muted"`
	StartedAt          int64    `bson:"started_at"`
	ArchivedAt         int64    `bson:"archived_at,omitempty"`
}

func newConversationDocument(c *domainchat.Conversation) conversationDocument {
	return conversationDocument{
		ID:                 c.ID,
		ReferenceCode:      c.ReferenceCode,
		InitiatorID:        c.InitiatorID,
		InitiatorName:      c.InitiatorName,
		InitiatorRole:      string(c.InitiatorRole),
		Participants:       append([]string(nil), c.Participants...),
		Type:               string(c.Type),
		Subject:            c.Subject,
		PropertyID:         c.PropertyID,
		PropertyTitle:      c.PropertyTitle,
		Status:             string(c.Status),
		LastMessagePreview: c.LastMessagePreview,
		LastMessageAt:      timeToMillis(c.LastMessageAt),
		LastMessageBy:      c.LastMessageBy,
		TotalMessages:      c.TotalMessages,
		UnreadCount:        c.UnreadCount,
		IsStarred:          c.IsStarred,
		IsMuted:            c.IsMuted,
		StartedAt:          timeToMillis(c.StartedAt),
		ArchivedAt:         timeToMillis(c.ArchivedAt),
	}
}

func (d conversationDocument) toConversation() *domainchat.Conversation {
	return &domainchat.Conversation{
		ID:                 d.ID,
		ReferenceCode:      d.ReferenceCode,
		InitiatorID:        d.InitiatorID,
		InitiatorName:      d.InitiatorName,
		InitiatorRole:      domainchat.Role(d.InitiatorRole),
		Participants:       append([]string(nil), d.Participants...),
		Type:               domainchat.ConversationType(d.Type),
		Subject:            d.Subject,
		PropertyID:         d.PropertyID,
		PropertyTitle:      d.PropertyTitle,
		Status:             domainchat.ConversationStatus(d.Status),
		LastMessagePreview: d.LastMessagePreview,
		LastMessageAt:      millisToTime(d.LastMessageAt),
		LastMessageBy:      d.LastMessageBy,
		TotalMessages:      d.TotalMessages,
		UnreadCount:        d.UnreadCount,
		IsStarred:          d.IsStarred,
		IsMuted:            d.IsMuted,
		StartedAt:          millisToTime(d.StartedAt),
		ArchivedAt:         millisToTime(d.ArchivedAt),
	}
}

type attachmentDocument struct {
	ID          string `bson:"id"`
	Name        string `bson:"name"`
	URL         string `bson:"url"`
	ContentType string `bson:"content_type"`
	Size        int64  `bson:"size"`
}

type messageDocument struct {
	ID               string               `bson:"_id"`
	ConversationID   string               `bson:"conversation_id"`
	SenderID         string               `bson:"sender_id"`
	SenderName       string               `bson:"sender_name"`
	SenderRole       string               `bson:"sender_role"`
	SenderAvatarURL  string               `bson:"sender_avatar_url,omitempty"`
	Content          string               `bson:"content"`
	Type             string               `bson:"type"`
	Status           string               `bson:"status"`
	PropertyID       string               `bson:"property_id,omitempty"`
	PropertyTitle    string               `bson:"property_title,omitempty"`
	PropertyImageURL string               `bson:"property_image_url,omitempty"`
	ReplyToID        string               `bson:"reply_to_id,omitempty"`
	ReplyToPreview   string               `bson:"reply_to_preview,omitempty"`
	Attachments      []attachmentDocument `bson:"attachments,omitempty"`
	IsEdited         bool                 `bson:"is_edited"`
	EditedAt         int64                `bson:"edited_at,omitempty"`
	IsDeleted        bool                 `bson:"is_deleted"`
	IsInternalNote   bool                 `bson:"is_internal_note"`
	ReadBy           string               `bson:"read_by,omitempty"`
	CreatedAt        int64                `bson:"created_at"`
}

func newMessageDocument(m *domainchat.Message) messageDocument {
	doc := messageDocument{
		ID:               m.ID,
		ConversationID:   m.ConversationID,
		SenderID:         m.SenderID,
		SenderName:       m.SenderName,
		SenderRole:       string(m.SenderRole),
		SenderAvatarURL:  m.SenderAvatarURL,
		Content:          m.Content,
		Type:             string(m.Type),
		Status:           string(m.Status),
		PropertyID:       m.PropertyID,
		PropertyTitle:    m.PropertyTitle,
		PropertyImageURL: m.PropertyImageURL,
		ReplyToID:        m.ReplyToID,
		ReplyToPreview:   m.ReplyToPreview,
		IsEdited:         m.IsEdited,
		EditedAt:         timeToMillis(m.EditedAt),
		IsDeleted:        m.IsDeleted,
		IsInternalNote:   m.IsInternalNote,
		ReadBy:           m.ReadBy,
		CreatedAt:        timeToMillis(m.CreatedAt),
	}
	for _, a := range m.Attachments {
		doc.Attachments = append(doc.Attachments, attachmentDocument(a))
	}
	return doc
}

func (d messageDocument) toMessage() *domainchat.Message {
	msg := &domainchat.Message{
		ID:               d.ID,
		ConversationID:   d.ConversationID,
		SenderID:         d.SenderID,
		SenderName:       d.SenderName,
		SenderRole:       domainchat.Role(d.SenderRole),
		SenderAvatarURL:  d.SenderAvatarURL,
		Content:          d.Content,
		Type:             domainchat.MessageType(d.Type),
		Status:           domainchat.MessageStatus(d.Status),
		PropertyID:       d.PropertyID,
		PropertyTitle:    d.PropertyTitle,
		PropertyImageURL: d.PropertyImageURL,
		ReplyToID:        d.ReplyToID,
		ReplyToPreview:   d.ReplyToPreview,
		IsEdited:         d.IsEdited,
		EditedAt:         millisToTime(d.EditedAt),
		IsDeleted:        d.IsDeleted,
		IsInternalNote:   d.IsInternalNote,
		ReadBy:           d.ReadBy,
		CreatedAt:        millisToTime(d.CreatedAt),
	}
	for _, a := range d.Attachments {
		msg.Attachments = append(msg.Attachments, domainchat.Attachment(a))
	}
	return msg
}

func timeToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func millisToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

var _ domainchat.Store = (*ChatStore)(nil)
