package ledger

import (
	"context"
	"fmt"
	"time"

	cfg "github.com/hui2334387208/comic-sub000/internal/config"
	model "github.com/hui2334387208/comic-sub000/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Настройки кампаний хранит админка в MongoDB, здесь только чтение
type CampaignsDB struct {
	mgo  *mongo.Client
	coll *mongo.Collection
}

func NewCampaignsDB(conf cfg.Campaign) (*CampaignsDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if conf.MongoURI == "" {
		return nil, fmt.Errorf("env LEDGER_MONGO is not set")
	}

	opts := options.Client().ApplyURI("mongodb://" + conf.MongoURI)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	err = client.Ping(ctx, nil)
	if err != nil {
		return nil, err
	}
	coll := client.Database(conf.MongoDatabase).Collection("campaigns")
	return &CampaignsDB{client, coll}, nil
}

// Active - последняя начавшаяся активная кампания
func (c *CampaignsDB) Active(ctx context.Context) (model.CampaignConfig, error) {
	now := time.Now()
	filter := bson.M{
		"active":   true,
		"startsAt": bson.M{"$lte": now},
		"$or": bson.A{
			bson.M{"endsAt": bson.M{"$gt": now}},
			bson.M{"endsAt": time.Time{}},
			bson.M{"endsAt": bson.M{"$exists": false}},
		},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "startsAt", Value: -1}})

	var campaign model.CampaignConfig
	err := c.coll.FindOne(ctx, filter, opts).Decode(&campaign)
	if err == mongo.ErrNoDocuments {
		return model.CampaignConfig{}, model.ErrCampaignInactive
	}
	if err != nil {
		return model.CampaignConfig{}, err
	}
	return campaign, nil
}

func (c *CampaignsDB) Close(ctx context.Context) error {
	return c.mgo.Disconnect(ctx)
}

// Кампания из переменных окружения, когда MongoDB не настроен
type StaticCampaign struct {
	campaign model.CampaignConfig
}

func NewStaticCampaign(conf cfg.Campaign) *StaticCampaign {
	return &StaticCampaign{model.CampaignConfig{
		ID:             conf.ID,
		Name:           conf.ID,
		Active:         true,
		InviterReward:  conf.InviterReward,
		InviteeReward:  conf.InviteeReward,
		RequiredTask:   conf.RequiredTask,
		MaxInvites:     conf.MaxInvites,
		RewardCurrency: model.Points,
		RelationTTL:    conf.RelationTTL,
	}}
}

func (s *StaticCampaign) Active(ctx context.Context) (model.CampaignConfig, error) {
	return s.campaign, nil
}
