package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opencode-ai/chatsync/internal/server"
	"github.com/opencode-ai/chatsync/pkg/client"
	"github.com/opencode-ai/chatsync/pkg/types"
	"github.com/opencode-ai/chatsync/pkg/wire"
)

// collect forwards every update of s until it ends.
func collect(s *client.Stream) <-chan types.Update {
	out := make(chan types.Update, 64)
	go func() {
		defer close(out)
		for {
			u, err := s.Next()
			if err != nil {
				return
			}
			out <- u
		}
	}()
	return out
}

// finishedReply reads updates until a finished assistant message arrives
// on its own. History snapshots are skipped.
func finishedReply(ch <-chan types.Update) types.Message {
	GinkgoHelper()
	var reply types.Message
	Eventually(func() bool {
		select {
		case u, ok := <-ch:
			if !ok || len(u.Messages) != 1 {
				return false
			}
			if m := u.Messages[0]; m.Role == types.RoleAssistant && m.Finished {
				reply = m
				return true
			}
		default:
		}
		return false
	}, 5*time.Second, 5*time.Millisecond).Should(BeTrue())
	return reply
}

var _ = Describe("Chat API", func() {
	var (
		env *testEnv
		ctx context.Context
	)

	BeforeEach(func() {
		env = newTestEnv(nil)
		ctx = context.Background()
	})

	Describe("GET /chat/{id}", func() {
		It("answers 404 for an unknown chat", func() {
			_, err := env.client.GetChat(ctx, "nope")
			Expect(client.IsNotFound(err)).To(BeTrue())
		})

		It("requires a chat id", func() {
			resp, err := http.Get(env.ts.URL + "/chat/")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /chats", func() {
		It("returns an empty list", func() {
			resp, err := http.Get(env.ts.URL + "/chats")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			Expect(strings.TrimSpace(string(body))).To(Equal("[]"))
		})

		It("lists the most recently updated chat first", func() {
			first := env.send(ctx, types.ChatRequest{Message: "one", Model: "gemma2-9b-it"})[0].SessionID
			second := env.send(ctx, types.ChatRequest{Message: "two", Model: "gemma2-9b-it"})[0].SessionID
			time.Sleep(10 * time.Millisecond)
			env.send(ctx, types.ChatRequest{Message: "three", Model: "gemma2-9b-it", ChatID: first})

			ids, err := env.client.ListChats(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(Equal([]string{first, second}))
		})
	})

	Describe("DELETE /chat/{id}", func() {
		It("removes the chat", func() {
			id := env.send(ctx, types.ChatRequest{Message: "hi", Model: "gemma2-9b-it"})[0].SessionID

			Expect(env.client.DeleteChat(ctx, id)).To(Succeed())
			_, err := env.client.GetChat(ctx, id)
			Expect(client.IsNotFound(err)).To(BeTrue())
		})

		It("succeeds for an unknown chat", func() {
			Expect(env.client.DeleteChat(ctx, "never-existed")).To(Succeed())
		})

		It("rejects an invalid id", func() {
			err := env.client.DeleteChat(ctx, "bad:id")
			var apiErr *client.APIError
			Expect(errors.As(err, &apiErr)).To(BeTrue())
			Expect(apiErr.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /models", func() {
		It("lists the catalog of every provider", func() {
			catalog, err := env.client.Models(ctx)
			Expect(err).NotTo(HaveOccurred())

			llama, ok := catalog.Find("groq", "llama-3.1-8b-instant")
			Expect(ok).To(BeTrue())
			Expect(llama.SupportsTools).To(BeTrue())

			gemma, ok := catalog.Find("groq", "gemma2-9b-it")
			Expect(ok).To(BeTrue())
			Expect(gemma.SupportsTools).To(BeFalse())

			_, ok = catalog.Find("openrouter", "vendor/model")
			Expect(ok).To(BeTrue())
		})
	})

	Describe("GET /audio/{id}", func() {
		It("serves stored speech", func() {
			_, err := env.audio.Write("msg-1", strings.NewReader("ID3 fake mp3"))
			Expect(err).NotTo(HaveOccurred())

			body, err := env.client.Audio(ctx, "msg-1")
			Expect(err).NotTo(HaveOccurred())
			defer body.Close()
			data, err := io.ReadAll(body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("ID3 fake mp3"))
		})

		It("answers 404 for missing speech", func() {
			_, err := env.client.Audio(ctx, "msg-2")
			Expect(client.IsNotFound(err)).To(BeTrue())
		})
	})

	Describe("GET /chat/{id}/events", func() {
		var id string

		BeforeEach(func() {
			id = env.send(ctx, types.ChatRequest{Message: "hi", Model: "gemma2-9b-it"})[0].SessionID
		})

		It("streams updates of other clients' exchanges", func() {
			obsCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			stream, err := env.client.Events(obsCtx, id)
			Expect(err).NotTo(HaveOccurred())
			defer stream.Close()
			updates := collect(stream)

			env.send(ctx, types.ChatRequest{Message: "again", Model: "gemma2-9b-it", ChatID: id})

			reply := finishedReply(updates)
			Expect(reply.Text).To(Equal(defaultReply))

			By("ending the stream when the chat is deleted")
			Expect(env.client.DeleteChat(ctx, id)).To(Succeed())
			Eventually(updates, 5*time.Second).Should(BeClosed())
		})

		It("keeps a reassembler in sync", func() {
			obsCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			stream, err := env.client.Events(obsCtx, id)
			Expect(err).NotTo(HaveOccurred())
			defer stream.Close()

			r := client.NewReassembler(env.client)
			done := make(chan error, 1)
			go func() { done <- r.Consume(obsCtx, stream.Body(), false) }()

			env.send(ctx, types.ChatRequest{Message: "again", Model: "gemma2-9b-it", ChatID: id})
			stored, err := env.client.GetChat(ctx, id)
			Expect(err).NotTo(HaveOccurred())

			Eventually(func() types.Context {
				c, _ := r.Get(id)
				return c
			}, 5*time.Second).Should(Equal(stored))
		})

		It("streams over a WebSocket", func() {
			obsCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			updates, err := env.client.EventsWS(obsCtx, id)
			Expect(err).NotTo(HaveOccurred())

			// The subscription is made after the upgrade completes.
			time.Sleep(50 * time.Millisecond)
			env.send(ctx, types.ChatRequest{Message: "again", Model: "gemma2-9b-it", ChatID: id})

			reply := finishedReply(updates)
			Expect(reply.Text).To(Equal(defaultReply))

			Expect(env.client.DeleteChat(ctx, id)).To(Succeed())
			Eventually(updates, 5*time.Second).Should(BeClosed())
		})

		It("rejects an invalid id", func() {
			resp, err := http.Get(env.ts.URL + "/chat/bad:id/events")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /health", func() {
		It("reports ok", func() {
			resp, err := http.Get(env.ts.URL + "/health")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			var body map[string]string
			Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
			Expect(body).To(HaveKeyWithValue("status", "ok"))
		})
	})

	Describe("GET /metrics", func() {
		It("counts requests and exchanges", func() {
			env.send(ctx, types.ChatRequest{Message: "hi", Model: "gemma2-9b-it"})

			resp, err := http.Get(env.ts.URL + "/metrics")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())

			text := string(body)
			Expect(text).To(ContainSubstring("chatsync_http_requests_total"))
			Expect(text).To(ContainSubstring(`chatsync_exchanges_total{outcome="ok",provider="groq"} 1`))
			Expect(text).To(ContainSubstring("chatsync_active_exchanges 0"))
		})
	})
})

var _ = Describe("Server limits", func() {
	It("rate limits chat requests", func() {
		cfg := server.DefaultConfig()
		cfg.RateLimit = 0.001
		cfg.RateBurst = 1
		env := newTestEnv(cfg)
		ctx := context.Background()

		env.send(ctx, types.ChatRequest{Message: "hi", Model: "gemma2-9b-it"})

		_, err := env.client.SendMessage(ctx, types.ChatRequest{Message: "hi", Model: "gemma2-9b-it"})
		var apiErr *client.APIError
		Expect(errors.As(err, &apiErr)).To(BeTrue())
		Expect(apiErr.StatusCode).To(Equal(http.StatusTooManyRequests))
		Expect(apiErr.Code).To(Equal("RATE_LIMITED"))

		// Reads are not limited.
		_, err = env.client.ListChats(ctx)
		Expect(err).NotTo(HaveOccurred())
	})

	It("sends heartbeats to idle observers", func() {
		cfg := server.DefaultConfig()
		cfg.HeartbeatInterval = 20 * time.Millisecond
		env := newTestEnv(cfg)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		stream, err := env.client.Events(ctx, "idle-chat")
		Expect(err).NotTo(HaveOccurred())
		defer stream.Close()

		buf := make([]byte, len(wire.Terminator))
		_, err = io.ReadFull(stream.Body(), buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(buf).To(Equal(wire.Terminator))
	})
})
