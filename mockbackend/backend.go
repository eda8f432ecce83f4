// Package mockbackend imitates the GenAI backends the consumer talks to: every
// streaming wire format, the single-shot JSON answers, and error statuses.
package mockbackend

import (
	"encoding/base64"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
	loremgen "github.com/bozaro/golorem"
	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	genaistream "github.com/haowjy/genai-stream-go"
)

const (
	EndPointHealth          = "/health"
	EndPointChatQnA         = "/v1/chatqna"
	EndPointCodeGen         = "/v1/codegen"
	EndPointFaqGen          = "/v1/faqgen"
	EndPointChatCompletions = "/v1/chat/completions"
	EndPointDocSum          = "/v1/docsum"
	EndPointTranslation     = "/v1/translation"
	EndPointTextToImage     = "/v1/text2image"
	EndPointTTS             = "/v1/tts"
	EndPointError           = "/v1/error/:status"
	EndPointMalformed       = "/v1/malformed"
)

// promptFields are the body fields the backends read the prompt from, in order.
var promptFields = []string{"messages", "prompt", "text", "query"}

// Config controls what the backend answers.
type Config struct {
	// Fragments is a fixed answer; generated lorem ipsum words are used when empty
	Fragments []string

	// Words is the number of generated words (default 20)
	Words int

	// Delay pauses before every frame
	Delay time.Duration

	// Logger defaults to the apex/log package logger
	Logger log.Interface
}

// Backend serves the mock endpoints.
type Backend struct {
	cfg    Config
	logger log.Interface

	mu        sync.Mutex
	generator *loremgen.Lorem
}

// New creates a mock backend.
func New(cfg Config) *Backend {
	if cfg.Words <= 0 {
		cfg.Words = 20
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Log
	}
	return &Backend{
		cfg:       cfg,
		logger:    logger.WithField("service", "mockbackend"),
		generator: loremgen.New(),
	}
}

// Handler builds the gin router.
func (b *Backend) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery(), b.requestLogger())

	router.GET(EndPointHealth, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "mockbackend",
		})
	})

	router.POST(EndPointChatQnA, b.streamHandler(genaistream.VariantPlainSSE))
	router.POST(EndPointCodeGen, b.streamHandler(genaistream.VariantPlainSSE))
	router.POST(EndPointFaqGen, b.streamHandler(genaistream.VariantJSONPatchSSE))
	router.POST(EndPointChatCompletions, b.streamHandler(genaistream.VariantChatCompletionSSE))
	router.POST(EndPointDocSum, b.streamHandler(genaistream.VariantByteStringSSE))
	router.POST(EndPointTranslation, b.streamHandler(genaistream.VariantRawText))
	router.POST(EndPointTextToImage, b.TextToImage)
	router.POST(EndPointTTS, b.TextToSpeech)
	router.POST(EndPointError, b.Error)
	router.POST(EndPointMalformed, b.Malformed)

	return router
}

func (b *Backend) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		b.logger.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("request")
	}
}

// streamHandler answers in the wire format of v.
func (b *Backend) streamHandler(v genaistream.Variant) gin.HandlerFunc {
	return func(c *gin.Context) {
		prompt, ok := b.readPrompt(c)
		if !ok {
			return
		}
		b.logger.WithFields(log.Fields{"variant": v.String(), "prompt_len": len(prompt)}).Debug("streaming answer")
		b.stream(c, v, b.answer())
	}
}

// TextToImage answers {"image": "<base64>"} in one piece.
func (b *Backend) TextToImage(c *gin.Context) {
	prompt, ok := b.readPrompt(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"image": base64.StdEncoding.EncodeToString([]byte("image:" + prompt)),
	})
}

// TextToSpeech answers {"tts_result": "<base64>"} in one piece.
func (b *Backend) TextToSpeech(c *gin.Context) {
	prompt, ok := b.readPrompt(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tts_result": base64.StdEncoding.EncodeToString([]byte("audio:" + prompt)),
	})
}

// Error answers with the status from the path. With ?message= the body carries
// {"error":{"message":...}}; otherwise it is empty.
func (b *Backend) Error(c *gin.Context) {
	status, err := strconv.Atoi(c.Param("status"))
	if err != nil || status < 400 || status > 599 {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "status must be 4xx or 5xx"}})
		return
	}

	if msg := c.Query("message"); msg != "" {
		c.JSON(status, gin.H{"error": gin.H{"message": msg}})
		return
	}
	c.Status(status)
}

// Malformed streams one good JSON-patch frame, then a broken one, then more text that
// must never be shown.
func (b *Backend) Malformed(c *gin.Context) {
	setStreamHeaders(c, genaistream.VariantJSONPatchSSE)
	c.Status(http.StatusOK)

	v := genaistream.VariantJSONPatchSSE
	if !b.write(c, genaistream.EncodeFragment(v, "Hello")) {
		return
	}
	if !b.write(c, []byte("data: {\"ops\": [\n\n")) {
		return
	}
	if !b.write(c, genaistream.EncodeFragment(v, " never")) {
		return
	}
	b.write(c, genaistream.EncodeDone(v))
}

// readPrompt reads the prompt from a JSON or multipart body. It writes a 400 and
// returns false on a malformed body.
func (b *Backend) readPrompt(c *gin.Context) (string, bool) {
	contentType := c.ContentType()

	if strings.HasPrefix(contentType, "multipart/") {
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "invalid multipart body"}})
			return "", false
		}
		var parts []string
		for _, field := range promptFields {
			parts = append(parts, form.Value[field]...)
		}
		for _, files := range form.File {
			for _, fh := range files {
				f, err := fh.Open()
				if err != nil {
					continue
				}
				data, _ := io.ReadAll(f)
				f.Close()
				parts = append(parts, string(data))
			}
		}
		return strings.Join(parts, "\n"), true
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "failed to read body"}})
		return "", false
	}
	if len(body) == 0 {
		return "", true
	}
	if !gjson.ValidBytes(body) {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "invalid JSON body"}})
		return "", false
	}
	for _, field := range promptFields {
		if r := gjson.GetBytes(body, field); r.Exists() {
			return r.String(), true
		}
	}
	return "", true
}

// answer returns the configured fragments or fresh lorem ipsum words.
func (b *Backend) answer() []string {
	if len(b.cfg.Fragments) > 0 {
		return b.cfg.Fragments
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	fragments := make([]string, 0, b.cfg.Words)
	for len(fragments) < b.cfg.Words {
		fragments = append(fragments, b.generator.Word(3, 10)+" ")
	}
	return fragments
}

func (b *Backend) stream(c *gin.Context, v genaistream.Variant, fragments []string) {
	setStreamHeaders(c, v)
	c.Status(http.StatusOK)

	for _, f := range fragments {
		if !b.write(c, genaistream.EncodeFragment(v, f)) {
			return
		}
	}
	b.write(c, genaistream.EncodeDone(v))
}

func setStreamHeaders(c *gin.Context, v genaistream.Variant) {
	if v.IsFramed() {
		c.Header("Content-Type", genaistream.ContentTypeEventStream)
	} else {
		c.Header("Content-Type", "text/plain; charset=utf-8")
	}
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
}

// write sends one frame and flushes it. It returns false once the client is gone.
func (b *Backend) write(c *gin.Context, data []byte) bool {
	if len(data) == 0 {
		return true
	}

	if b.cfg.Delay > 0 {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-time.After(b.cfg.Delay):
		}
	}

	if _, err := c.Writer.Write(data); err != nil {
		b.logger.WithError(err).Warn("failed to write stream frame")
		return false
	}
	c.Writer.Flush()
	return true
}
