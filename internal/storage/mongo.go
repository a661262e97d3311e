package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/yourusername/technotes/internal/notes"
	"github.com/yourusername/technotes/internal/users"
)

const (
	usersCollection    = "users"
	notesCollection    = "notes"
	countersCollection = "counters"

	noteTicketCounter = "notes.ticket"
)

// caseInsensitive はユーザー名とタイトルの比較に使う照合順序です。
// strength 1 は大文字小文字とアクセントの違いを同一視します（"José" と "jose" は重複）。
var caseInsensitive = &options.Collation{Locale: "en", Strength: 1}

// Mongo は MongoDB をバックエンドとするストアです。
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
	now    func() time.Time
}

// ConnectMongo は MongoDB に接続し、疎通確認まで行います。
func ConnectMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Mongo{
		client: client,
		db:     client.Database(database),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// EnsureIndexes は一意制約を含むインデックスを作成します。
// ユーザー名の重複はこのインデックスが最終的に判定します。
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	if _, err := m.db.Collection(usersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetName("username_unique_ci_ai").SetUnique(true).SetCollation(caseInsensitive),
	}); err != nil {
		return fmt.Errorf("create users index: %w", err)
	}

	if _, err := m.db.Collection(notesCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "title", Value: 1}},
			Options: options.Index().SetName("title_unique_ci_ai").SetUnique(true).SetCollation(caseInsensitive),
		},
		{
			Keys:    bson.D{{Key: "user", Value: 1}},
			Options: options.Index().SetName("user"),
		},
	}); err != nil {
		return fmt.Errorf("create notes indexes: %w", err)
	}
	return nil
}

// Ping は MongoDB への疎通を確認します。
func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

// Close は接続を切断します。
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// Users は users.Repository としてのビューを返します。
func (m *Mongo) Users() *MongoUsers {
	return &MongoUsers{coll: m.db.Collection(usersCollection), now: m.now}
}

// Notes は notes.Repository としてのビューを返します。
func (m *Mongo) Notes() *MongoNotes {
	return &MongoNotes{
		coll:     m.db.Collection(notesCollection),
		counters: m.db.Collection(countersCollection),
		now:      m.now,
	}
}

type userDocument struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	Username  string        `bson:"username"`
	Password  string        `bson:"password"`
	Roles     []string      `bson:"roles"`
	Active    bool          `bson:"active"`
	CreatedAt time.Time     `bson:"createdAt"`
	UpdatedAt time.Time     `bson:"updatedAt"`
}

func (d userDocument) toUser() users.User {
	return users.User{
		ID:           d.ID.Hex(),
		Username:     d.Username,
		PasswordHash: d.Password,
		Roles:        d.Roles,
		Active:       d.Active,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

// MongoUsers は users コレクションのリポジトリです。
type MongoUsers struct {
	coll *mongo.Collection
	now  func() time.Time
}

// List は全ユーザーを作成順に返します。
func (r *MongoUsers) List(ctx context.Context) ([]users.User, error) {
	cursor, err := r.coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	var docs []userDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	out := make([]users.User, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.toUser())
	}
	return out, nil
}

// FindByID は ID 形式が不正な場合も ErrNotFound を返します。
// FindByID は ID でユーザーを取得します。見つからない場合は users.ErrNotFound です。
func (r *MongoUsers) FindByID(ctx context.Context, id string) (*users.User, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, users.ErrNotFound
	}
	return r.findOne(ctx, bson.M{"_id": oid}, options.FindOne())
}

// FindByUsername は大文字小文字・アクセントを区別せずにユーザーを取得します。
func (r *MongoUsers) FindByUsername(ctx context.Context, username string) (*users.User, error) {
	return r.findOne(ctx, bson.M{"username": username}, options.FindOne().SetCollation(caseInsensitive))
}

func (r *MongoUsers) findOne(ctx context.Context, filter bson.M, opts *options.FindOneOptionsBuilder) (*users.User, error) {
	var doc userDocument
	if err := r.coll.FindOne(ctx, filter, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, users.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	user := doc.toUser()
	return &user, nil
}

// Create はユーザーを保存し、ID と作成日時を設定します。
func (r *MongoUsers) Create(ctx context.Context, user *users.User) error {
	now := r.now()
	doc := userDocument{
		ID:        bson.NewObjectID(),
		Username:  user.Username,
		Password:  user.PasswordHash,
		Roles:     user.Roles,
		Active:    user.Active,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return users.ErrDuplicateUsername
		}
		return fmt.Errorf("insert user: %w", err)
	}

	user.ID = doc.ID.Hex()
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// Update はユーザーを上書きします。
func (r *MongoUsers) Update(ctx context.Context, user *users.User) error {
	oid, err := bson.ObjectIDFromHex(user.ID)
	if err != nil {
		return users.ErrNotFound
	}

	now := r.now()
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{
		"username":  user.Username,
		"password":  user.PasswordHash,
		"roles":     user.Roles,
		"active":    user.Active,
		"updatedAt": now,
	}})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return users.ErrDuplicateUsername
		}
		return fmt.Errorf("update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return users.ErrNotFound
	}
	user.UpdatedAt = now
	return nil
}

// Delete はユーザーを削除します。
func (r *MongoUsers) Delete(ctx context.Context, id string) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return users.ErrNotFound
	}
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if res.DeletedCount == 0 {
		return users.ErrNotFound
	}
	return nil
}

type noteDocument struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	User      bson.ObjectID `bson:"user"`
	Title     string        `bson:"title"`
	Text      string        `bson:"text"`
	Completed bool          `bson:"completed"`
	Ticket    int64         `bson:"ticket"`
	CreatedAt time.Time     `bson:"createdAt"`
	UpdatedAt time.Time     `bson:"updatedAt"`
}

func (d noteDocument) toNote() notes.Note {
	return notes.Note{
		ID:        d.ID.Hex(),
		User:      d.User.Hex(),
		Title:     d.Title,
		Text:      d.Text,
		Completed: d.Completed,
		Ticket:    d.Ticket,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// MongoNotes は notes コレクションのリポジトリです。
// チケット番号は counters コレクションの連番から採番します。
type MongoNotes struct {
	coll     *mongo.Collection
	counters *mongo.Collection
	now      func() time.Time
}

// List は全ノートをチケット番号順に返します。
func (r *MongoNotes) List(ctx context.Context) ([]notes.Note, error) {
	cursor, err := r.coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "ticket", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	var docs []noteDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}

	out := make([]notes.Note, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.toNote())
	}
	return out, nil
}

// FindByID は ID でノートを取得します。見つからない場合は notes.ErrNotFound です。
func (r *MongoNotes) FindByID(ctx context.Context, id string) (*notes.Note, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, notes.ErrNotFound
	}
	return r.findOne(ctx, bson.M{"_id": oid}, options.FindOne())
}

// FindByTitle は大文字小文字・アクセントを区別せずにノートを取得します。
func (r *MongoNotes) FindByTitle(ctx context.Context, title string) (*notes.Note, error) {
	return r.findOne(ctx, bson.M{"title": title}, options.FindOne().SetCollation(caseInsensitive))
}

func (r *MongoNotes) findOne(ctx context.Context, filter bson.M, opts *options.FindOneOptionsBuilder) (*notes.Note, error) {
	var doc noteDocument
	if err := r.coll.FindOne(ctx, filter, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notes.ErrNotFound
		}
		return nil, fmt.Errorf("find note: %w", err)
	}
	note := doc.toNote()
	return &note, nil
}

// HasNotes は userID に割り当てられたノートがあるかどうかを返します。
func (r *MongoNotes) HasNotes(ctx context.Context, userID string) (bool, error) {
	oid, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return false, nil
	}
	n, err := r.coll.CountDocuments(ctx, bson.M{"user": oid}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count notes: %w", err)
	}
	return n > 0, nil
}

// Create はノートを保存し、ID とチケット番号を採番します。
func (r *MongoNotes) Create(ctx context.Context, note *notes.Note) error {
	userID, err := bson.ObjectIDFromHex(note.User)
	if err != nil {
		return notes.ErrUnknownUser
	}
	ticket, err := r.nextTicket(ctx)
	if err != nil {
		return err
	}

	now := r.now()
	doc := noteDocument{
		ID:        bson.NewObjectID(),
		User:      userID,
		Title:     note.Title,
		Text:      note.Text,
		Completed: note.Completed,
		Ticket:    ticket,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return notes.ErrDuplicateTitle
		}
		return fmt.Errorf("insert note: %w", err)
	}

	note.ID = doc.ID.Hex()
	note.Ticket = ticket
	note.CreatedAt = now
	note.UpdatedAt = now
	return nil
}

// Update はノートを上書きします。チケット番号は変更しません。
func (r *MongoNotes) Update(ctx context.Context, note *notes.Note) error {
	oid, err := bson.ObjectIDFromHex(note.ID)
	if err != nil {
		return notes.ErrNotFound
	}
	userID, err := bson.ObjectIDFromHex(note.User)
	if err != nil {
		return notes.ErrUnknownUser
	}

	now := r.now()
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{
		"user":      userID,
		"title":     note.Title,
		"text":      note.Text,
		"completed": note.Completed,
		"updatedAt": now,
	}})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return notes.ErrDuplicateTitle
		}
		return fmt.Errorf("update note: %w", err)
	}
	if res.MatchedCount == 0 {
		return notes.ErrNotFound
	}
	note.UpdatedAt = now
	return nil
}

// Delete はノートを削除します。
func (r *MongoNotes) Delete(ctx context.Context, id string) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return notes.ErrNotFound
	}
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	if res.DeletedCount == 0 {
		return notes.ErrNotFound
	}
	return nil
}

// nextTicket は $inc による連番を取り出し、FirstTicket から始まるチケット番号に変換します。
func (r *MongoNotes) nextTicket(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": noteTicketCounter},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("next ticket: %w", err)
	}
	return notes.FirstTicket - 1 + counter.Seq, nil
}
