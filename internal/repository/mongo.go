// Package repository persists the per-chat message mirror and chat
// membership in MongoDB. The mirror is what lets a restart rebuild the
// consensus index without replaying the whole event topic.
package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sim31/fractalgram/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrUnavailable means the chat's membership has not been synced yet.
	ErrUnavailable = errors.New("not available")
)

type Repository struct {
	messages *mongo.Collection
	members  *mongo.Collection
}

func NewMongoClient(uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	return client, nil
}

func New(db *mongo.Database) *Repository {
	messages := db.Collection("messages")
	ix := mongo.IndexModel{
		Keys:    bson.D{{Key: "chat_id", Value: 1}, {Key: messageIDField, Value: 1}},
		Options: options.Index().SetName("chat_message_idx"),
	}
	_, _ = messages.Indexes().CreateOne(context.Background(), ix)

	members := db.Collection("chat_members")
	mix := mongo.IndexModel{
		Keys:    bson.D{{Key: "chat_id", Value: 1}, {Key: memberIDField, Value: 1}},
		Options: options.Index().SetName("chat_member_idx").SetUnique(true),
	}
	_, _ = members.Indexes().CreateOne(context.Background(), mix)

	return &Repository{messages: messages, members: members}
}

type memberDoc struct {
	ChatID string         `bson:"chat_id"`
	User   models.ExtUser `bson:"user"`
}

type messageDoc struct {
	ChatID  string          `bson:"chat_id"`
	Message *models.Message `bson:"message"`
}

// Field paths into the embedded documents. The embedded Message and ExtUser
// ids carry bson:"_id" tags, so the stored paths are message._id / user._id.
const (
	messageIDField = "message._id"
	memberIDField  = "user._id"
)

func (r *Repository) UpsertMessage(ctx context.Context, m *models.Message) error {
	filter := bson.M{"chat_id": m.ChatID, messageIDField: m.ID}
	update := bson.M{"$set": messageDoc{ChatID: m.ChatID, Message: m}}
	opts := options.Update().SetUpsert(true)
	_, err := r.messages.UpdateOne(ctx, filter, update, opts)
	return err
}

func (r *Repository) DeleteMessages(ctx context.Context, chatID string, ids []models.MessageID) error {
	if len(ids) == 0 {
		return nil
	}
	filter := bson.M{"chat_id": chatID, messageIDField: bson.M{"$in": ids}}
	_, err := r.messages.DeleteMany(ctx, filter)
	return err
}

func (r *Repository) ChatMessages(ctx context.Context, chatID string) ([]*models.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: messageIDField, Value: 1}})
	cur, err := r.messages.Find(ctx, bson.M{"chat_id": chatID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*models.Message{}
	for cur.Next(ctx) {
		var d messageDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, d.Message)
	}
	return out, cur.Err()
}

func (r *Repository) UpsertMember(ctx context.Context, chatID string, u *models.ExtUser) error {
	filter := bson.M{"chat_id": chatID, memberIDField: u.ID}
	update := bson.M{"$set": memberDoc{ChatID: chatID, User: *u}}
	opts := options.Update().SetUpsert(true)
	_, err := r.members.UpdateOne(ctx, filter, update, opts)
	return err
}

func (r *Repository) RemoveMember(ctx context.Context, chatID, userID string) error {
	_, err := r.members.DeleteOne(ctx, bson.M{"chat_id": chatID, memberIDField: userID})
	return err
}

// ChatMembers returns the synced membership of a chat. A chat with no member
// documents is treated as not-yet-synced rather than empty.
func (r *Repository) ChatMembers(ctx context.Context, chatID string) ([]*models.ExtUser, error) {
	cur, err := r.members.Find(ctx, bson.M{"chat_id": chatID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*models.ExtUser{}
	for cur.Next(ctx) {
		var d memberDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		u := d.User
		out = append(out, &u)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrUnavailable
	}
	return out, nil
}
