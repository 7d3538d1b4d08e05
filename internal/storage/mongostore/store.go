// Package mongostore keeps the ledger in MongoDB. Single-document updates
// are atomic, so conditional decrements are expressed as filtered
// findAndModify calls.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"infobot-backend/internal/models"
	"infobot-backend/internal/storage"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ storage.Store = (*Store)(nil)

func New(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	s := &Store{client: client, db: client.Database(database)}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	specs := map[string][]mongo.IndexModel{
		collAccounts: {
			{Keys: bson.D{{Key: "credits", Value: -1}, {Key: "joined_at", Value: 1}}},
			{Keys: bson.D{{Key: "joined_at", Value: 1}}},
			{Keys: bson.D{{Key: "last_active_at", Value: 1}}},
			{Keys: bson.D{{Key: "referrer_id", Value: 1}}},
		},
		collSearches: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "timestamp", Value: -1}}},
		},
		collClaims: {
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "date", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}

	for coll, idx := range specs {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("failed to create %s indexes: %w", coll, err)
		}
	}
	return nil
}

// Reset deletes every document while keeping indexes.
func (s *Store) Reset(ctx context.Context) error {
	for _, coll := range []string{collAccounts, collStats, collSearches, collClaims, collSettings} {
		if _, err := s.db.Collection(coll).DeleteMany(ctx, bson.D{}); err != nil {
			return fmt.Errorf("failed to clear %s: %w", coll, err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) accounts() *mongo.Collection { return s.db.Collection(collAccounts) }

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return storage.ErrNotFound
	}
	return err
}

func requireMatch(res *mongo.UpdateResult, err error) error {
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func byID(userID int64) bson.D {
	return bson.D{{Key: "_id", Value: userID}}
}

// Accounts ---------------------------------------------------------------

func (s *Store) CreateAccountIfAbsent(ctx context.Context, acct *models.Account) (bool, error) {
	_, err := s.accounts().InsertOne(ctx, newAccountDoc(acct))
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create account: %w", err)
	}
	return true, nil
}

func (s *Store) GetAccount(ctx context.Context, userID int64) (*models.Account, error) {
	var doc accountDoc
	if err := s.accounts().FindOne(ctx, byID(userID)).Decode(&doc); err != nil {
		return nil, notFound(err)
	}
	return doc.model(), nil
}

func (s *Store) IncrementAccount(ctx context.Context, userID int64, field models.AccountField, delta int64, guard storage.Guard) (int64, error) {
	name := string(field)
	filter := byID(userID)

	var update interface{}
	switch guard.Mode {
	case storage.GuardFloor:
		filter = append(filter, bson.E{Key: name, Value: bson.D{{Key: "$gte", Value: guard.Floor - delta}}})
		update = bson.D{{Key: "$inc", Value: bson.D{{Key: name, Value: delta}}}}
	case storage.GuardClamp:
		update = mongo.Pipeline{
			{{Key: "$set", Value: bson.D{{Key: name, Value: bson.D{{Key: "$max", Value: bson.A{
				bson.D{{Key: "$add", Value: bson.A{"$" + name, delta}}},
				guard.Floor,
			}}}}}}},
		}
	default:
		update = bson.D{{Key: "$inc", Value: bson.D{{Key: name, Value: delta}}}}
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc accountDoc
	err := s.accounts().FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == nil {
		return doc.field(field), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return 0, fmt.Errorf("failed to increment %s: %w", field, err)
	}
	if guard.Mode != storage.GuardFloor {
		return 0, storage.ErrNotFound
	}

	// The filter missed: either no account or the floor held.
	if err := s.accounts().FindOne(ctx, byID(userID)).Decode(&doc); err != nil {
		return 0, notFound(err)
	}
	return doc.field(field), storage.ErrConditionFailed
}

func (s *Store) setFields(ctx context.Context, userID int64, update bson.D) error {
	return requireMatch(s.accounts().UpdateOne(ctx, byID(userID), update))
}

func (s *Store) SetDailyStreak(ctx context.Context, userID int64, streak int64) error {
	return s.setFields(ctx, userID, bson.D{{Key: "$set", Value: bson.D{{Key: "daily_streak", Value: streak}}}})
}

func (s *Store) TouchAccount(ctx context.Context, userID int64, at time.Time) error {
	return s.setFields(ctx, userID, bson.D{{Key: "$set", Value: bson.D{{Key: "last_active_at", Value: at}}}})
}

func (s *Store) SetBanned(ctx context.Context, userID int64, banned bool, at time.Time) error {
	if banned {
		return s.setFields(ctx, userID, bson.D{{Key: "$set", Value: bson.D{
			{Key: "banned", Value: true},
			{Key: "ban_at", Value: at},
		}}})
	}
	return s.setFields(ctx, userID, bson.D{
		{Key: "$set", Value: bson.D{{Key: "banned", Value: false}}},
		{Key: "$unset", Value: bson.D{{Key: "ban_at", Value: ""}}},
	})
}

func (s *Store) MarkReferralRewarded(ctx context.Context, userID int64) (bool, error) {
	filter := append(byID(userID), bson.E{Key: "referral_rewarded", Value: false})
	update := bson.D{{Key: "$set", Value: bson.D{{Key: "referral_rewarded", Value: true}}}}

	res, err := s.accounts().UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to mark referral: %w", err)
	}
	if res.ModifiedCount == 1 {
		return true, nil
	}

	n, err := s.accounts().CountDocuments(ctx, byID(userID))
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, storage.ErrNotFound
	}
	return false, nil
}

func (s *Store) findAccounts(ctx context.Context, filter interface{}, opts *options.FindOptions) ([]*models.Account, error) {
	cursor, err := s.accounts().Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []*accountDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]*models.Account, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}

func (s *Store) FindAccountsByName(ctx context.Context, query string, limit int) ([]*models.Account, error) {
	filter := bson.D{{Key: "name", Value: bson.D{
		{Key: "$regex", Value: regexp.QuoteMeta(query)},
		{Key: "$options", Value: "i"},
	}}}
	opts := options.Find().SetSort(bson.D{{Key: "joined_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	out, err := s.findAccounts(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to search names: %w", err)
	}
	return out, nil
}

func (s *Store) PendingReferrals(ctx context.Context, joinedBefore time.Time, limit int) ([]*models.Account, error) {
	filter := bson.D{
		{Key: "referrer_id", Value: bson.D{{Key: "$exists", Value: true}}},
		{Key: "referral_rewarded", Value: false},
		{Key: "joined_at", Value: bson.D{{Key: "$lt", Value: joinedBefore}}},
	}
	opts := options.Find().SetSort(bson.D{{Key: "joined_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	out, err := s.findAccounts(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending referrals: %w", err)
	}
	return out, nil
}

// Stats ------------------------------------------------------------------

func (s *Store) IncrementStats(ctx context.Context, userID int64, deltas map[models.StatField]int64) error {
	if len(deltas) == 0 {
		return nil
	}

	inc := bson.D{}
	for _, field := range models.StatFields {
		if delta, ok := deltas[field]; ok {
			inc = append(inc, bson.E{Key: string(field), Value: delta})
		}
	}

	opts := options.Update().SetUpsert(true)
	_, err := s.db.Collection(collStats).UpdateOne(ctx, byID(userID), bson.D{{Key: "$inc", Value: inc}}, opts)
	if err != nil {
		return fmt.Errorf("failed to increment stats: %w", err)
	}
	return nil
}

func (s *Store) GetStats(ctx context.Context, userID int64) (*models.UserStats, error) {
	var doc statsDoc
	if err := s.db.Collection(collStats).FindOne(ctx, byID(userID)).Decode(&doc); err != nil {
		return nil, notFound(err)
	}
	return doc.model(), nil
}

// Searches ---------------------------------------------------------------

func (s *Store) AppendSearch(ctx context.Context, rec *models.SearchRecord) error {
	doc := &searchDoc{
		ID:         rec.ID,
		UserID:     rec.UserID,
		Term:       rec.Term,
		Kind:       string(rec.Kind),
		Succeeded:  rec.Succeeded,
		Payload:    string(rec.Payload),
		OccurredAt: rec.OccurredAt,
	}
	if _, err := s.db.Collection(collSearches).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to append search: %w", err)
	}
	return nil
}

func (s *Store) ListSearches(ctx context.Context, userID int64, limit, offset int) ([]*models.SearchRecord, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(offset))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.db.Collection(collSearches).Find(ctx, bson.D{{Key: "user_id", Value: userID}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list searches: %w", err)
	}
	var docs []*searchDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode searches: %w", err)
	}

	out := make([]*models.SearchRecord, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}

func (s *Store) CountSearches(ctx context.Context, userID int64) (int64, error) {
	n, err := s.db.Collection(collSearches).CountDocuments(ctx, bson.D{{Key: "user_id", Value: userID}})
	if err != nil {
		return 0, fmt.Errorf("failed to count searches: %w", err)
	}
	return n, nil
}

// Claims -----------------------------------------------------------------

func (s *Store) InsertClaim(ctx context.Context, claim *models.DailyClaim) error {
	doc := &claimDoc{
		UserID:    claim.UserID,
		Day:       claim.Day,
		ClaimedAt: claim.ClaimedAt,
		Amount:    claim.Amount,
	}
	_, err := s.db.Collection(collClaims).InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return storage.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert claim: %w", err)
	}
	return nil
}

func (s *Store) HasClaim(ctx context.Context, userID int64, day string) (bool, error) {
	n, err := s.db.Collection(collClaims).CountDocuments(ctx, bson.D{
		{Key: "user_id", Value: userID},
		{Key: "date", Value: day},
	})
	if err != nil {
		return false, fmt.Errorf("failed to check claim: %w", err)
	}
	return n > 0, nil
}

// Settings ---------------------------------------------------------------

func (s *Store) InitSettings(ctx context.Context, defaults models.Settings) (*models.Settings, error) {
	onInsert := bson.D{}
	for _, key := range models.SettingKeys {
		onInsert = append(onInsert, bson.E{Key: string(key), Value: settingValue(key, defaults)})
	}

	_, err := s.db.Collection(collSettings).UpdateOne(ctx,
		bson.D{{Key: "_id", Value: settingsID}},
		bson.D{{Key: "$setOnInsert", Value: onInsert}},
		options.Update().SetUpsert(true))
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return nil, fmt.Errorf("failed to init settings: %w", err)
	}
	return s.GetSettings(ctx)
}

func (s *Store) GetSettings(ctx context.Context) (*models.Settings, error) {
	var doc settingsDoc
	err := s.db.Collection(collSettings).FindOne(ctx, bson.D{{Key: "_id", Value: settingsID}}).Decode(&doc)
	if err != nil {
		return nil, notFound(err)
	}
	return doc.model(), nil
}

func (s *Store) UpdateSetting(ctx context.Context, key models.SettingKey, src models.Settings) error {
	res, err := s.db.Collection(collSettings).UpdateOne(ctx,
		bson.D{{Key: "_id", Value: settingsID}},
		bson.D{{Key: "$set", Value: bson.D{{Key: string(key), Value: settingValue(key, src)}}}})
	return requireMatch(res, err)
}

// Aggregates -------------------------------------------------------------

func (s *Store) CountAccounts(ctx context.Context, filter storage.AccountFilter) (int64, error) {
	q := bson.D{}
	if filter.JoinedSince != nil {
		q = append(q, bson.E{Key: "joined_at", Value: bson.D{{Key: "$gte", Value: *filter.JoinedSince}}})
	}
	if filter.ActiveSince != nil {
		q = append(q, bson.E{Key: "last_active_at", Value: bson.D{{Key: "$gte", Value: *filter.ActiveSince}}})
	}
	if filter.CreditsAbove != nil {
		q = append(q, bson.E{Key: "credits", Value: bson.D{{Key: "$gt", Value: *filter.CreditsAbove}}})
	}

	n, err := s.accounts().CountDocuments(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("failed to count accounts: %w", err)
	}
	return n, nil
}

func (s *Store) sum(ctx context.Context, coll, field string) (int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: "$" + field}}},
		}}},
	}
	cursor, err := s.db.Collection(coll).Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("failed to sum %s: %w", field, err)
	}

	var rows []struct {
		Total int64 `bson:"total"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, fmt.Errorf("failed to decode %s sum: %w", field, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Total, nil
}

func (s *Store) SumCredits(ctx context.Context) (int64, error) {
	return s.sum(ctx, collAccounts, string(models.FieldCredits))
}

func (s *Store) SumStats(ctx context.Context, field models.StatField) (int64, error) {
	return s.sum(ctx, collStats, string(field))
}

func (s *Store) TopReferrers(ctx context.Context, limit int) ([]models.ReferrerCount, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "referrer_id", Value: bson.D{{Key: "$exists", Value: true}}}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$referrer_id"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
	}
	if limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: limit}})
	}

	cursor, err := s.accounts().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to count referrals: %w", err)
	}
	var rows []struct {
		UserID int64 `bson:"_id"`
		Count  int64 `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode referral counts: %w", err)
	}

	out := make([]models.ReferrerCount, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.ReferrerCount{UserID: r.UserID, Referrals: r.Count})
	}
	return out, nil
}

func (s *Store) ScanAccounts(ctx context.Context, q storage.ScanQuery) ([]*models.LeaderboardEntry, error) {
	var sortSpec bson.D
	switch q.SortBy {
	case models.SortBySearches:
		sortSpec = bson.D{{Key: "searches", Value: -1}, {Key: "joined_at", Value: 1}, {Key: "_id", Value: 1}}
	case models.SortByJoined:
		sortSpec = bson.D{{Key: "joined_at", Value: -1}, {Key: "_id", Value: -1}}
	default:
		sortSpec = bson.D{{Key: "credits", Value: -1}, {Key: "joined_at", Value: 1}, {Key: "_id", Value: 1}}
	}

	pipeline := mongo.Pipeline{}
	if q.SortBy == models.SortBySearches {
		pipeline = append(pipeline,
			bson.D{{Key: "$lookup", Value: bson.D{
				{Key: "from", Value: collStats},
				{Key: "localField", Value: "_id"},
				{Key: "foreignField", Value: "_id"},
				{Key: "as", Value: "stats"},
			}}},
			bson.D{{Key: "$addFields", Value: bson.D{{Key: "searches", Value: bson.D{{Key: "$ifNull", Value: bson.A{
				bson.D{{Key: "$arrayElemAt", Value: bson.A{"$stats.total_searches", 0}}},
				0,
			}}}}}}},
		)
	}
	pipeline = append(pipeline, bson.D{{Key: "$sort", Value: sortSpec}})
	if q.Offset > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$skip", Value: q.Offset}})
	}
	if q.Limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: q.Limit}})
	}

	cursor, err := s.accounts().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to scan accounts: %w", err)
	}
	var docs []*accountDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode accounts: %w", err)
	}
	if len(docs) == 0 {
		return []*models.LeaderboardEntry{}, nil
	}

	ids := make([]int64, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.UserID)
	}
	statsCursor, err := s.db.Collection(collStats).Find(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}})
	if err != nil {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}
	var stats []*statsDoc
	if err := statsCursor.All(ctx, &stats); err != nil {
		return nil, fmt.Errorf("failed to decode stats: %w", err)
	}
	byUser := make(map[int64]*models.UserStats, len(stats))
	for _, st := range stats {
		byUser[st.UserID] = st.model()
	}

	entries := make([]*models.LeaderboardEntry, 0, len(docs))
	for i, d := range docs {
		st, ok := byUser[d.UserID]
		if !ok {
			st = &models.UserStats{UserID: d.UserID}
		}
		entries = append(entries, &models.LeaderboardEntry{
			Position: int64(q.Offset + i + 1),
			Account:  d.model(),
			Stats:    st,
		})
	}
	return entries, nil
}
