package server_test

import (
	"context"
	"net/http"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opencode-ai/chatsync/pkg/client"
	"github.com/opencode-ai/chatsync/pkg/types"
)

var _ = Describe("POST /chat", func() {
	var (
		env *testEnv
		ctx context.Context
	)

	BeforeEach(func() {
		env = newTestEnv(nil)
		ctx = context.Background()
	})

	Context("with a new chat", func() {
		It("streams the user message first and ends with one finished reply", func() {
			updates := env.send(ctx, types.ChatRequest{Message: "hi", Provider: "groq", Model: "gemma2-9b-it"})

			first := updates[0]
			Expect(first.SessionID).NotTo(BeEmpty())
			Expect(first.Messages).To(HaveLen(1))
			Expect(first.Messages[0].Role).To(Equal(types.RoleUser))
			Expect(first.Messages[0].Text).To(Equal("hi"))
			Expect(first.Messages[0].Finished).To(BeTrue())

			last := updates[len(updates)-1]
			Expect(last.Messages).To(HaveLen(1))
			Expect(last.Messages[0].Role).To(Equal(types.RoleAssistant))
			Expect(last.Messages[0].Text).To(Equal(defaultReply))
			Expect(last.Messages[0].Finished).To(BeTrue())

			replyID := last.Messages[0].ID
			finished := 0
			prev := ""
			for _, u := range updates[1:] {
				Expect(u.SessionID).To(Equal(first.SessionID))
				m := u.Messages[0]
				Expect(m.ID).To(Equal(replyID))
				Expect(strings.HasPrefix(m.Text, prev)).To(BeTrue(), "text only grows")
				prev = m.Text
				if m.Finished {
					finished++
				}
			}
			Expect(finished).To(Equal(1))
			Expect(len(updates)).To(BeNumerically(">", 2), "partial text is streamed")
		})

		It("stores the exchange", func() {
			updates := env.send(ctx, types.ChatRequest{Message: "hi", Model: "gemma2-9b-it"})
			id := updates[0].SessionID

			chat, err := env.client.GetChat(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(chat.ID).To(Equal(id))
			Expect(chat.History).To(HaveLen(2))
			Expect(chat.History[1].Text).To(Equal(defaultReply))
			Expect(chat.History[1].Provider).To(Equal("groq"))
			Expect(chat.History[1].Model).To(Equal("gemma2-9b-it"))

			ids, err := env.client.ListChats(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(ConsistOf(id))
		})

		It("is mirrored exactly by a reassembler", func() {
			r := client.NewReassembler(env.client)
			stream, err := env.client.SendMessage(ctx, types.ChatRequest{Message: "hi", Model: "gemma2-9b-it"})
			Expect(err).NotTo(HaveOccurred())
			defer stream.Close()
			Expect(r.Consume(ctx, stream.Body(), true)).To(Succeed())

			ids := r.Known()
			Expect(ids).To(HaveLen(1))
			mirror, ok := r.Get(ids[0])
			Expect(ok).To(BeTrue())

			stored, err := env.client.GetChat(ctx, ids[0])
			Expect(err).NotTo(HaveOccurred())
			Expect(mirror).To(Equal(stored))
		})
	})

	Context("with an existing chat", func() {
		It("appends to the history", func() {
			id := env.send(ctx, types.ChatRequest{Message: "hi", Model: "gemma2-9b-it"})[0].SessionID

			updates := env.send(ctx, types.ChatRequest{Message: "again", Model: "gemma2-9b-it", ChatID: id})
			Expect(updates[0].SessionID).To(Equal(id))

			chat, err := env.client.GetChat(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(chat.History).To(HaveLen(4))
			Expect(chat.History[2].Text).To(Equal("again"))

			// The second request carries the whole conversation.
			reqs := env.llm.Requests()
			messages := reqs[len(reqs)-1].Body["messages"].([]any)
			Expect(len(messages)).To(BeNumerically(">=", 3))
		})

		It("answers 404 for an unknown chat", func() {
			_, err := env.client.SendMessage(ctx, types.ChatRequest{Message: "hi", ChatID: "missing"})
			Expect(client.IsNotFound(err)).To(BeTrue())
		})
	})

	Context("with a tool-capable model", func() {
		It("runs the tool before answering", func() {
			updates := env.send(ctx, types.ChatRequest{Message: toolPrompt, Model: "llama-3.1-8b-instant"})
			id := updates[0].SessionID

			last := updates[len(updates)-1].Messages[0]
			Expect(last.Role).To(Equal(types.RoleAssistant))
			Expect(last.Text).To(Equal(toolAnswer))
			Expect(last.Finished).To(BeTrue())

			var toolFrames int
			for _, u := range updates {
				for _, m := range u.Messages {
					if m.Role == types.RoleTool {
						toolFrames++
					}
				}
			}
			Expect(toolFrames).To(BeNumerically(">=", 2), "pending and finished tool message")

			chat, err := env.client.GetChat(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(chat.History).To(HaveLen(3))
			tool := chat.History[1]
			Expect(tool.Role).To(Equal(types.RoleTool))
			Expect(tool.ToolName).To(Equal("search_calculate"))
			Expect(tool.Text).To(ContainSubstring("42"))
			Expect(tool.Finished).To(BeTrue())

			reqs := env.llm.Requests()
			Expect(reqs).To(HaveLen(2))
			Expect(reqs[0].Stream).To(BeFalse())
			Expect(reqs[0].Body).To(HaveKey("tools"))
			Expect(reqs[1].Stream).To(BeTrue())
		})

		It("leaves the history alone when no tool is called", func() {
			updates := env.send(ctx, types.ChatRequest{Message: "hi", Model: "llama-3.1-8b-instant"})

			for _, u := range updates {
				for _, m := range u.Messages {
					Expect(m.Role).NotTo(Equal(types.RoleTool))
				}
			}
			chat, err := env.client.GetChat(ctx, updates[0].SessionID)
			Expect(err).NotTo(HaveOccurred())
			Expect(chat.History).To(HaveLen(2))
			Expect(chat.History[1].Text).To(Equal(defaultReply))
		})
	})

	Context("with a non-streaming provider", func() {
		It("answers in one finished frame", func() {
			updates := env.send(ctx, types.ChatRequest{Message: "hi", Provider: "openrouter", Model: "vendor/model"})
			Expect(texts(updates)).To(Equal([]string{"hi", "Answered in one piece."}))
		})

		It("finishes with empty text when the provider fails", func() {
			env.openrouter.Model.GenerateErr = context.DeadlineExceeded
			updates := env.send(ctx, types.ChatRequest{Message: "hi", Provider: "openrouter", Model: "vendor/model"})

			Expect(updates).To(HaveLen(2))
			last := updates[1].Messages[0]
			Expect(last.Text).To(BeEmpty())
			Expect(last.Finished).To(BeTrue())
		})
	})

	Context("with an invalid request", func() {
		It("rejects a malformed body", func() {
			resp, err := http.Post(env.ts.URL+"/chat", "application/json", strings.NewReader("{"))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("rejects an empty message", func() {
			_, err := env.client.SendMessage(ctx, types.ChatRequest{})
			apiErr, ok := err.(*client.APIError)
			Expect(ok).To(BeTrue())
			Expect(apiErr.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(apiErr.Code).To(Equal("INVALID_REQUEST"))
		})

		It("suggests a close model name", func() {
			_, err := env.client.SendMessage(ctx, types.ChatRequest{Message: "hi", Model: "gemma2-9b"})
			apiErr, ok := err.(*client.APIError)
			Expect(ok).To(BeTrue())
			Expect(apiErr.StatusCode).To(Equal(http.StatusNotFound))
			Expect(apiErr.Code).To(Equal("MODEL_NOT_FOUND"))
			Expect(apiErr.Details).To(HaveKeyWithValue("suggestion", "groq/gemma2-9b-it"))
			Expect(env.llm.Requests()).To(BeEmpty())
		})

		It("rejects an invalid chat id", func() {
			_, err := env.client.SendMessage(ctx, types.ChatRequest{Message: "hi", ChatID: "../x"})
			apiErr, ok := err.(*client.APIError)
			Expect(ok).To(BeTrue())
			Expect(apiErr.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})
})
