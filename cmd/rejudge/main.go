// Command rejudge queues submissions for another judge run.
//
//	rejudge [-config configs/judge_service.yaml] [-topic judge.rejudge] <submissionId>...
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"judgecore/internal/common/mq"
	"judgecore/internal/judge/model"
)

const (
	defaultConfigPath   = "configs/judge_service.yaml"
	defaultRejudgeTopic = "judge.rejudge"
	defaultTimeout      = 10 * time.Second
)

type fileConfig struct {
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		ClientID     string   `yaml:"clientID"`
		RejudgeTopic string   `yaml:"rejudgeTopic"`
	} `yaml:"kafka"`
}

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to judge service config file")
	brokers := flag.String("brokers", "", "Override comma separated kafka brokers")
	topic := flag.String("topic", "", "Override rejudge topic")
	timeout := flag.Duration("timeout", defaultTimeout, "Publish timeout")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <submissionId>...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	ids := submissionIDs(flag.Args())
	if len(ids) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if *brokers != "" {
		cfg.Kafka.Brokers = strings.Split(*brokers, ",")
	}
	if *topic != "" {
		cfg.Kafka.RejudgeTopic = *topic
	}
	if cfg.Kafka.RejudgeTopic == "" {
		cfg.Kafka.RejudgeTopic = defaultRejudgeTopic
	}

	queue, err := mq.NewKafkaQueue(mq.KafkaConfig{
		Brokers:  cfg.Kafka.Brokers,
		ClientID: cfg.Kafka.ClientID,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init kafka failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = queue.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	failed := 0
	for _, id := range ids {
		if err := publish(ctx, queue, cfg.Kafka.RejudgeTopic, id); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", id, err)
			failed++
			continue
		}
		fmt.Printf("%s: queued on %s\n", id, cfg.Kafka.RejudgeTopic)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func loadConfig(path string) (*fileConfig, error) {
	var cfg fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file failed: %w", err)
	}
	return &cfg, nil
}

func submissionIDs(args []string) []string {
	seen := make(map[string]struct{}, len(args))
	out := make([]string, 0, len(args))
	for _, arg := range args {
		id := strings.TrimSpace(arg)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func publish(ctx context.Context, queue mq.Producer, topic, submissionID string) error {
	body, err := json.Marshal(model.JudgeMessage{SubmissionID: submissionID})
	if err != nil {
		return fmt.Errorf("encode judge message failed: %w", err)
	}
	if err := queue.Publish(ctx, topic, mq.NewMessage(submissionID, body)); err != nil {
		return fmt.Errorf("publish judge message failed: %w", err)
	}
	return nil
}
