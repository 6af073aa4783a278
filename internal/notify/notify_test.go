package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNATSPublisher(t *testing.T) {
	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	srv := natsserver.RunServer(&opts)
	defer srv.Shutdown()

	sub, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	defer sub.Close()
	inbox, err := sub.SubscribeSync("amm.blocks")
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	pub, err := ConnectNATS(srv.ClientURL(), "amm", zaptest.NewLogger(t))
	require.NoError(t, err)
	defer pub.Close()

	require.NoError(t, pub.Publish(context.Background(), TopicBlocks, BlockUpdate{Height: 77, Pools: []string{"pair1"}, Trades: 2}))

	msg, err := inbox.NextMsg(2 * time.Second)
	require.NoError(t, err)
	var got BlockUpdate
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, int64(77), got.Height)
	assert.Equal(t, []string{"pair1"}, got.Pools)
}

func TestRedisPublisher(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	sub := client.Subscribe(ctx, "amm:candles")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	pub := NewRedisPublisher(client, "amm:")
	require.NoError(t, pub.Publish(ctx, TopicCandles, CandleUpdate{PoolID: 3, Address: "pair3"}))

	select {
	case msg := <-sub.Channel():
		var got CandleUpdate
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, int64(3), got.PoolID)
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

type failing struct{}

func (failing) Publish(context.Context, string, any) error { return errors.New("down") }

func TestMultiJoinsErrors(t *testing.T) {
	m := Multi{Nop{}, nil, failing{}}
	err := m.Publish(context.Background(), TopicBlocks, BlockUpdate{})
	assert.EqualError(t, err, "down")
	assert.NoError(t, Multi{Nop{}}.Publish(context.Background(), TopicBlocks, nil))
}
