package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	appkafka "example.com/socialgraph/internal/broker"
	"example.com/socialgraph/internal/models"
	"github.com/gocql/gocql"
	"github.com/segmentio/kafka-go"
)

// Floods the notification topic with synthetic events to measure worker
// throughput. Recipients rotate over a fixed pool so partition keys spread.
func main() {
	total := flag.Int("n", 100000, "total number of events to send")
	batchSize := flag.Int("batch", 100, "events per write")
	numWorkers := flag.Int("workers", 4, "parallel producers")
	recipients := flag.Int("recipients", 500, "distinct recipient ids")
	broker := flag.String("broker", "localhost:29092", "kafka broker")
	topic := flag.String("topic", "notification-events", "kafka topic")
	flag.Parse()

	// Kafka writer with asynchronous sending enabled
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  []string{*broker},
		Topic:    *topic,
		Async:    true,
		Balancer: &kafka.Hash{},
	})
	defer w.Close()

	pool := make([]string, *recipients)
	for i := range pool {
		pool[i] = gocql.TimeUUID().String()
	}
	senderID := gocql.TimeUUID().String()
	kinds := []models.Kind{models.KindFollow, models.KindLike, models.KindComment}
	start := time.Now()

	var successCount uint64
	var failCount uint64

	jobs := make(chan int, *total)
	var wg sync.WaitGroup

	for wID := 0; wID < *numWorkers; wID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			batch := make([]kafka.Message, 0, *batchSize)

			flush := func() {
				if len(batch) == 0 {
					return
				}
				if err := w.WriteMessages(context.Background(), batch...); err != nil {
					atomic.AddUint64(&failCount, uint64(len(batch)))
					fmt.Printf("write error: %v\n", err)
				} else {
					atomic.AddUint64(&successCount, uint64(len(batch)))
				}
				batch = batch[:0]
			}

			for i := range jobs {
				n := models.Notification{
					ID:          gocql.TimeUUID().String(),
					RecipientID: pool[i%len(pool)],
					SenderID:    senderID,
					Kind:        kinds[i%len(kinds)],
					Created:     time.Now().UTC(),
				}
				if n.Kind != models.KindFollow {
					n.PostID = fmt.Sprintf("bench-post-%d", i)
				}
				if n.Kind == models.KindComment {
					n.CommentID = fmt.Sprintf("bench-comment-%d", i)
				}

				v, err := json.Marshal(appkafka.NotificationEvent{Type: appkafka.EventNotificationCreated, Notification: n})
				if err != nil {
					atomic.AddUint64(&failCount, 1)
					fmt.Printf("marshal error: %v\n", err)
					continue
				}

				batch = append(batch, kafka.Message{Key: []byte(n.RecipientID), Value: v})
				if len(batch) >= *batchSize {
					flush()
				}
			}
			flush()
		}()
	}

	for i := 0; i < *total; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	// --- Benchmark results ---
	elapsed := time.Since(start)
	fmt.Printf("Total events: %d\n", *total)
	fmt.Printf("Successful: %d, Failed: %d\n", successCount, failCount)
	fmt.Printf("Elapsed time: %s\n", elapsed)
	fmt.Printf("Throughput: %.2f msg/s\n", float64(successCount)/elapsed.Seconds())
}
