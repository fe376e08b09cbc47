// Command client is a console participant for the auction house.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/katatrina/auction-house/internal/auction"
	"github.com/katatrina/auction-house/internal/client"
	"github.com/katatrina/auction-house/internal/directory"
	"github.com/katatrina/auction-house/internal/util"
	"github.com/katatrina/auction-house/internal/validator"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const usage = "Commands: bid <amount> | msg <text> | info | quit"

type consoleListener struct{}

func (consoleListener) OnSystemMessage(message string) {
	fmt.Printf("[SYSTEM] %s\n", message)
}

func (consoleListener) OnAuctionUpdate(state auction.RoundState) {
	printState(state)
}

func (consoleListener) OnBidOutcome(outcome auction.BidOutcome) {
	if outcome.Accepted {
		fmt.Printf("[BID] accepted at %s\n", util.FormatMoney(outcome.Amount))
		return
	}
	fmt.Printf("[BID] %s\n", outcome.Reason)
}

func printState(state auction.RoundState) {
	if !state.Active || state.Item == nil {
		fmt.Println("[INFO] no active round")
		return
	}

	top := state.TopBidder
	if top == "" {
		top = "none"
	}
	fmt.Printf("[INFO] %s: %s (min. next bid %s, top bidder %s, %s left)\n",
		state.Item.Name,
		util.FormatMoney(state.CurrentPrice),
		util.FormatMoney(state.MinimumBid()),
		top,
		state.TimeRemaining(time.Now()).Round(time.Second))
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel)

	flags := pflag.NewFlagSet("client", pflag.ExitOnError)
	flags.String("nickname", "", "nickname to register with (3-16 letters, digits or underscore)")
	flags.String("server", "", "auction server URL, skips the directory lookup")
	flags.String("redis", "", "address of the redis directory")
	flags.String("binding", "AuctionService", "directory name of the auction server")
	_ = flags.Parse(os.Args[1:])

	v := viper.New()
	v.SetEnvPrefix("AUCTION")
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		log.Fatal().Err(err).Msg("failed to bind flags 😣")
	}

	in := bufio.NewScanner(os.Stdin)

	nickname := v.GetString("nickname")
	for {
		if nickname == "" {
			fmt.Print("Nickname: ")
			if !in.Scan() {
				return
			}
			nickname = in.Text()
		}
		sanitized, err := validator.SanitizeNickname(nickname)
		if err == nil {
			nickname = sanitized
			break
		}
		fmt.Printf("Invalid nickname: %s\n", err)
		nickname = ""
	}

	binding := v.GetString("binding")
	dir, closeDir := newDirectory(v.GetString("server"), v.GetString("redis"), binding)
	defer closeDir()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	participant := client.New(client.Config{
		Nickname:  nickname,
		Binding:   binding,
		Directory: dir,
		Listener:  consoleListener{},
	})

	state, err := participant.Connect(ctx)
	if err != nil {
		if errors.Is(err, auction.ErrNameInUse) {
			fmt.Println("Nickname already in use.")
			os.Exit(1)
		}
		log.Fatal().Err(err).Msg("failed to connect to the auction 😣")
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = participant.Close(closeCtx)
	}()

	fmt.Println(usage)
	printState(state)

	lines := make(chan string)
	go func() {
		defer close(lines)
		for in.Scan() {
			lines <- in.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if !runCommand(ctx, participant, line) {
				return
			}
		}
	}
}

// runCommand executes one console line. It returns false when the user quits.
func runCommand(ctx context.Context, participant *client.Client, line string) bool {
	command, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(command) {
	case "":
	case "quit", "exit":
		return false
	case "info":
		state, err := participant.State(ctx)
		if err != nil {
			fmt.Printf("[ERROR] %s\n", err)
			break
		}
		printState(state)
	case "bid":
		amount, err := validator.ParseAmount(arg)
		if err != nil {
			fmt.Printf("[ERROR] %s\n", err)
			break
		}
		if _, err = participant.Bid(ctx, amount); err != nil {
			fmt.Printf("[ERROR] %s\n", err)
		}
	case "msg":
		if err := participant.Say(ctx, arg); err != nil {
			fmt.Printf("[ERROR] %s\n", err)
		}
	default:
		fmt.Println(usage)
	}
	return true
}

func newDirectory(serverURL string, redisAddress string, binding string) (directory.Directory, func()) {
	if serverURL != "" {
		return directory.NewStatic(map[string]string{binding: serverURL}), func() {}
	}
	if redisAddress == "" {
		log.Fatal().Msg("either --server or --redis is required 😣")
	}

	redisDb := redis.NewClient(&redis.Options{Addr: redisAddress})
	dir, err := directory.NewRedis(redisDb)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create directory 😣")
	}
	return dir, func() {
		_ = dir.Close()
		_ = redisDb.Close()
	}
}
