package generators

import (
	"context"
	"fmt"
	"strings"

	"github.com/edumint/edumint-backend/internal/audio"
	"github.com/edumint/edumint-backend/internal/blob"
	"github.com/edumint/edumint-backend/internal/config"
	"github.com/edumint/edumint-backend/internal/errs"
	"github.com/edumint/edumint-backend/internal/llm"
	"github.com/edumint/edumint-backend/internal/logger"
	"github.com/edumint/edumint-backend/internal/types"
)

// audioGenerator writes a teacher/student dialogue script and, when TTS is
// active, renders it: PCM from the TTS backend, WAV framing, MP3 encoding,
// blob upload. With TTS off the script is still generated and kept; only the
// rendering is skipped.
type audioGenerator struct {
	log     *logger.Logger
	client  llm.Client
	encoder audio.Encoder
	store   blob.AudioStore
	cfg     config.Config
}

func NewAudioGenerator(client llm.Client, encoder audio.Encoder, store blob.AudioStore, cfg config.Config, log *logger.Logger) Generator {
	return &audioGenerator{
		log:     log.With("generator", "Audio"),
		client:  client,
		encoder: encoder,
		store:   store,
		cfg:     cfg,
	}
}

func (g *audioGenerator) Component() types.ComponentType { return types.ComponentAudio }

func (g *audioGenerator) DependsOn() []types.ComponentType { return nil }

func (g *audioGenerator) Generate(ctx context.Context, req types.ContentRequest, mc types.MasterContext, _ Artifacts, packageID string) (any, map[string]any, error) {
	content, err := g.generate(ctx, req, mc, packageID, "")
	if err != nil {
		return nil, nil, err
	}
	return content, audioMeta(content), nil
}

func (g *audioGenerator) Revise(ctx context.Context, pkg *types.ContentPackage, feedback string) (any, map[string]any, error) {
	req := requestFromPackage(pkg)
	var current types.AudioContent
	if err := pkg.Component(types.ComponentAudio, &current); err != nil {
		return nil, nil, err
	}
	note := fmt.Sprintf(`This is a revision pass. The previous dialogue was reviewed and must be
rewritten to address this feedback:

%s

Previous dialogue for reference:
%s`, feedback, truncate(current.DialogueScript, 4000))
	// Revised audio renders under a distinct prefix so the original blob
	// survives until the replace is durable.
	content, err := g.generate(ctx, req, pkg.MasterContext, pkg.ID+"_rev", note)
	if err != nil {
		return nil, nil, err
	}
	return content, audioMeta(content), nil
}

func (g *audioGenerator) generate(ctx context.Context, req types.ContentRequest, mc types.MasterContext, packageID, revision string) (*types.AudioContent, error) {
	script, err := g.generateScript(ctx, req, mc, revision)
	if err != nil {
		return nil, err
	}

	voices := types.VoiceConfig{
		TeacherVoice: g.cfg.TeacherVoice,
		StudentVoice: g.cfg.StudentVoice,
	}

	// Rendering needs both the toggle and a configured blob store; without
	// either, the script is the artifact and rendering can happen later.
	if !g.cfg.TTSActive() || g.store == nil {
		g.log.Info("TTS rendering skipped, keeping script only",
			"package_id", packageID,
			"tts_active", g.cfg.TTSActive(),
			"blob_store", g.store != nil,
		)
		return &types.AudioContent{
			DialogueScript:  script,
			DurationSeconds: audio.EstimateSpokenDuration(script),
			Voices:          voices,
			TTSStatus:       "disabled",
			FileSizeBytes:   0,
		}, nil
	}

	speech, err := g.client.GenerateSpeech(ctx, script, llm.SpeechOptions{
		TeacherVoice: voices.TeacherVoice,
		StudentVoice: voices.StudentVoice,
	})
	if err != nil {
		return nil, err
	}

	params := audio.ParseMimeParams(speech.MimeType)
	wav := audio.EncodeWAV(speech.PCM, params)
	duration := audio.PCMDuration(len(speech.PCM), params)

	data, mp3OK := g.encoder.EncodeMP3(ctx, wav)
	format, contentType := "mp3", "audio/mpeg"
	if !mp3OK {
		format, contentType = "wav", "audio/wav"
	}

	filename := fmt.Sprintf("%s_dialogue.%s", packageID, format)
	blobName := packageID + "/" + filename
	url, err := g.store.Upload(ctx, blobName, data, contentType)
	if err != nil {
		return nil, &errs.AudioPipelineError{PackageID: packageID, Err: err}
	}

	g.log.Info("audio rendered",
		"package_id", packageID,
		"format", format,
		"duration_seconds", duration,
		"size_bytes", len(data),
	)
	return &types.AudioContent{
		AudioURL:        &url,
		BlobName:        &blobName,
		AudioFilename:   &filename,
		DialogueScript:  script,
		DurationSeconds: duration,
		Voices:          voices,
		TTSStatus:       "success",
		Format:          format,
		FileSizeBytes:   len(data),
	}, nil
}

func (g *audioGenerator) generateScript(ctx context.Context, req types.ContentRequest, mc types.MasterContext, revision string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, `Write a natural teacher/student dialogue teaching this subskill, about
3-4 minutes when spoken aloud.

Subject: %s
Subskill: %s
Audience: %s students
Core concepts the dialogue must cover: %s
Key terminology to use naturally: %s
Learning objectives: %s

Format every line as either "Teacher: ..." or "Student: ...". The student
asks genuine questions and makes one realistic mistake the teacher corrects.
No stage directions, no markdown, no narration outside the two speakers.`,
		req.Subject, req.Subskill, req.GradeInfo(),
		joinList(mc.CoreConcepts), describeTerms(mc.KeyTerminology),
		joinList(mc.LearningObjectives))
	if revision != "" {
		b.WriteString("\n\n")
		b.WriteString(revision)
	}

	script, err := g.client.GenerateText(ctx, b.String(), llm.GenerateOptions{Temperature: 0.8})
	if err != nil {
		return "", err
	}
	if !strings.Contains(script, "Teacher:") || !strings.Contains(script, "Student:") {
		return "", errs.Generationf("dialogue script is missing speaker labels")
	}
	return script, nil
}

func audioMeta(a *types.AudioContent) map[string]any {
	return map[string]any{
		"tts_status":       a.TTSStatus,
		"duration_seconds": a.DurationSeconds,
		"file_size_bytes":  a.FileSizeBytes,
	}
}
