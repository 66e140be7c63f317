package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/avolkov/huddle/internal/client"
	"github.com/avolkov/huddle/internal/domain"
)

var (
	serverURL string
	roomID    string
	peerName  string
	publish   string
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join a room and stay in it until interrupted",
	RunE:  runJoin,
}

func init() {
	joinCmd.Flags().StringVar(&serverURL, "server", "ws://localhost:3001/api/ws/signal", "signaling endpoint URL")
	joinCmd.Flags().StringVar(&roomID, "room", "", "meeting id (empty creates a new one)")
	joinCmd.Flags().StringVar(&peerName, "name", "", "display name")
	joinCmd.Flags().StringVar(&publish, "publish", "audio,video", "comma-separated kinds to publish, empty to stay receive-only")
	_ = joinCmd.MarkFlagRequired("name")
	rootCmd.AddCommand(joinCmd)
}

func runJoin(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	room := domain.RoomID(roomID)
	if room == "" {
		room = domain.NewRoomID()
		log.Info().Str("room", string(room)).Msg("created new meeting id")
	}

	conn, err := client.Dial(ctx, serverURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	sess := client.NewSession(conn)
	sess.OnStream(func(s *client.RemoteStream) {
		name, _ := sess.PeerName(s.PeerID)
		var kinds []string
		for _, t := range s.Tracks() {
			kinds = append(kinds, string(t.Kind))
		}
		fmt.Printf("stream update: peer=%s name=%q tracks=[%s]\n", s.PeerID, name, strings.Join(kinds, ","))
	})
	conn.OnNotify(sess.HandleNotification)
	conn.Start()

	joinCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	info, err := sess.Join(joinCtx, room, peerName)
	if err != nil {
		return err
	}
	role := "participant"
	if info.IsHost {
		role = "host"
	}
	fmt.Printf("joined room %s as %s (%d other peers)\n", room, role, len(info.Peers))

	if publish != "" {
		var kinds []domain.MediaKind
		for _, k := range strings.Split(publish, ",") {
			kind := domain.MediaKind(strings.TrimSpace(k))
			if !kind.Valid() {
				return fmt.Errorf("invalid publish kind %q", k)
			}
			kinds = append(kinds, kind)
		}
		pubCtx, cancelPub := context.WithTimeout(ctx, 15*time.Second)
		defer cancelPub()
		ids, err := sess.Publish(pubCtx, kinds...)
		if err != nil {
			return err
		}
		fmt.Printf("publishing %d track(s)\n", len(ids))
	}

	<-ctx.Done()

	leaveCtx, cancelLeave := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelLeave()
	if err := sess.Leave(leaveCtx); err != nil {
		log.Warn().Err(err).Msg("leave failed")
	}
	return nil
}
