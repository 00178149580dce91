// Package audio synthesizes per-language input audio for conversation
// turns. The synthesized clip is test fixture material attached to the
// step record; synthesis failures never fail a turn.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"
)

// Synthesizer renders an utterance as speech in the given language and
// returns an opaque reference to the stored clip.
type Synthesizer interface {
	Synthesize(ctx context.Context, utterance, language string) (string, error)
}

// Store persists a rendered clip and returns its reference.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader) (string, error)
}

// PollySynthesizer implements Synthesizer using AWS Polly.
type PollySynthesizer struct {
	client *polly.Client
	store  Store
}

// voiceForLanguage maps the supported language codes to Polly voices.
// Unknown codes fall back to the en-US voice rather than failing the turn.
var voiceForLanguage = map[string]types.VoiceId{
	"en-US": types.VoiceIdJoanna,
	"en-GB": types.VoiceIdAmy,
	"es-ES": types.VoiceIdLucia,
	"es-MX": types.VoiceIdMia,
	"de-DE": types.VoiceIdVicki,
	"fr-FR": types.VoiceIdLea,
	"it-IT": types.VoiceIdBianca,
	"ja-JP": types.VoiceIdTakumi,
}

// NewPollySynthesizer creates a Polly-backed synthesizer using the default
// AWS credential chain.
func NewPollySynthesizer(ctx context.Context, region string, store Store) (*PollySynthesizer, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return &PollySynthesizer{
		client: polly.NewFromConfig(cfg),
		store:  store,
	}, nil
}

// Synthesize renders the utterance and stores the MP3 clip.
func (s *PollySynthesizer) Synthesize(ctx context.Context, utterance, language string) (string, error) {
	voice, ok := voiceForLanguage[language]
	if !ok {
		voice = voiceForLanguage["en-US"]
	}

	out, err := s.client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Text:         aws.String(utterance),
		VoiceId:      voice,
		OutputFormat: types.OutputFormatMp3,
		LanguageCode: types.LanguageCode(language),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("polly rejected synthesis (%s): %w", apiErr.ErrorCode(), err)
		}
		return "", fmt.Errorf("polly synthesis failed: %w", err)
	}
	defer out.AudioStream.Close()

	key := fmt.Sprintf("input/%s/%s.mp3", language, sanitizeKey(utterance))
	ref, err := s.store.Put(ctx, key, out.AudioStream)
	if err != nil {
		return "", fmt.Errorf("failed to store synthesized clip: %w", err)
	}

	return ref, nil
}

func sanitizeKey(utterance string) string {
	key := strings.ToLower(utterance)
	key = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ':
			return '-'
		}
		return -1
	}, key)
	if len(key) > 64 {
		key = key[:64]
	}
	return key
}
