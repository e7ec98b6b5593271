package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/playfab-session/internal/domain"
)

func main() {
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "player-stats", "Kafka topic for stat submissions")
	sessions := flag.String("sessions", "", "Session IDs to submit for (comma-separated)")
	stats := flag.String("stats", "wins", "Statistic names (comma-separated)")
	maxValue := flag.Int("max", 1000, "Upper bound of generated values")
	rate := flag.Int("rate", 10, "Submissions per second")
	duration := flag.Duration("duration", 0, "Duration to run (0 = until interrupted)")
	flag.Parse()

	sessionIDs := splitList(*sessions)
	statNames := splitList(*stats)
	if len(sessionIDs) == 0 || len(statNames) == 0 || *rate <= 0 || *maxValue <= 0 {
		fmt.Fprintln(os.Stderr, "at least one session, one stat, a positive rate and a positive max are required")
		flag.Usage()
		os.Exit(2)
	}

	fmt.Printf("Brokers:   %s\n", *brokers)
	fmt.Printf("Topic:     %s\n", *topic)
	fmt.Printf("Sessions:  %d\n", len(sessionIDs))
	fmt.Printf("Stats:     %s\n", strings.Join(statNames, ", "))
	fmt.Printf("Rate:      %d/sec\n\n", *rate)

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(splitList(*brokers), config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}

	var sent, failed int64
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&sent, 1)
		}
	}()
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&failed, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	shutdown := func(reason string) {
		fmt.Printf("\n%s, shutting down...\n", reason)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("Completed. Sent: %d, Errors: %d\n", atomic.LoadInt64(&sent), atomic.LoadInt64(&failed))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second / time.Duration(*rate))
	defer ticker.Stop()
	report := time.NewTicker(5 * time.Second)
	defer report.Stop()

	var deadline <-chan time.Time
	if *duration > 0 {
		deadline = time.After(*duration)
	}

	var queued int64
	for {
		select {
		case <-sigChan:
			shutdown("Interrupted")
			return

		case <-deadline:
			shutdown("Duration reached")
			return

		case <-ticker.C:
			submission := domain.StatSubmission{
				SessionID: sessionIDs[rand.Intn(len(sessionIDs))],
				StatName:  statNames[rand.Intn(len(statNames))],
				Value:     rand.Intn(*maxValue) + 1,
			}
			data, err := json.Marshal(submission)
			if err != nil {
				log.Printf("Failed to marshal submission: %v", err)
				continue
			}
			producer.Input() <- &sarama.ProducerMessage{
				Topic: *topic,
				Key:   sarama.StringEncoder(submission.SessionID),
				Value: sarama.ByteEncoder(data),
			}
			queued++

		case <-report.C:
			fmt.Printf("[%s] Queued: %d | Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				queued,
				atomic.LoadInt64(&sent),
				atomic.LoadInt64(&failed),
			)
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
