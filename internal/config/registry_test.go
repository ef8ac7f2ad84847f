package config_test

import (
	"errors"
	"testing"

	"github.com/MrWong99/voxpipe/internal/config"
	"github.com/MrWong99/voxpipe/pkg/provider/llm"
	llmmock "github.com/MrWong99/voxpipe/pkg/provider/llm/mock"
	"github.com/MrWong99/voxpipe/pkg/provider/speakerid"
	speakermock "github.com/MrWong99/voxpipe/pkg/provider/speakerid/mock"
	"github.com/MrWong99/voxpipe/pkg/provider/stt"
	sttmock "github.com/MrWong99/voxpipe/pkg/provider/stt/mock"
	"github.com/MrWong99/voxpipe/pkg/provider/tts"
	ttsmock "github.com/MrWong99/voxpipe/pkg/provider/tts/mock"
)

func TestRegistry_Unknown(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	entry := config.ProviderEntry{Name: "nonexistent"}

	_, errLLM := reg.CreateLLM(entry)
	_, errSTT := reg.CreateSTT(entry)
	_, errTTS := reg.CreateTTS(entry)
	_, errProf := reg.CreateProfiler(entry)
	_, errRec := reg.CreateRecognizer(entry, nil)

	for name, err := range map[string]error{
		"llm":        errLLM,
		"stt":        errSTT,
		"tts":        errTTS,
		"profiler":   errProf,
		"recognizer": errRec,
	} {
		if !errors.Is(err, config.ErrProviderNotRegistered) {
			t.Errorf("%s: expected ErrProviderNotRegistered, got: %v", name, err)
		}
	}
}

func TestRegistry_Registered(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	wantLLM := &llmmock.Provider{}
	wantSTT := &sttmock.Provider{}
	wantTTS := &ttsmock.Provider{}
	wantProf := &speakermock.Profiler{}
	wantRec := &speakermock.Recognizer{}

	var gotProfile []byte
	reg.RegisterLLM("stub", func(config.ProviderEntry) (llm.Provider, error) { return wantLLM, nil })
	reg.RegisterSTT("stub", func(config.ProviderEntry) (stt.Provider, error) { return wantSTT, nil })
	reg.RegisterTTS("stub", func(config.ProviderEntry) (tts.Provider, error) { return wantTTS, nil })
	reg.RegisterProfiler("stub", func(config.ProviderEntry) (speakerid.Profiler, error) { return wantProf, nil })
	reg.RegisterRecognizer("stub", func(_ config.ProviderEntry, profile []byte) (speakerid.Recognizer, error) {
		gotProfile = profile
		return wantRec, nil
	})

	entry := config.ProviderEntry{Name: "stub"}
	if got, err := reg.CreateLLM(entry); err != nil || got != wantLLM {
		t.Errorf("CreateLLM = %v, %v", got, err)
	}
	if got, err := reg.CreateSTT(entry); err != nil || got != wantSTT {
		t.Errorf("CreateSTT = %v, %v", got, err)
	}
	if got, err := reg.CreateTTS(entry); err != nil || got != wantTTS {
		t.Errorf("CreateTTS = %v, %v", got, err)
	}
	if got, err := reg.CreateProfiler(entry); err != nil || got != wantProf {
		t.Errorf("CreateProfiler = %v, %v", got, err)
	}
	if got, err := reg.CreateRecognizer(entry, []byte{1, 2}); err != nil || got != wantRec {
		t.Errorf("CreateRecognizer = %v, %v", got, err)
	}
	if len(gotProfile) != 2 {
		t.Errorf("recognizer factory got profile %v", gotProfile)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	wantErr := errors.New("factory boom")
	reg.RegisterLLM("broken", func(config.ProviderEntry) (llm.Provider, error) {
		return nil, wantErr
	})
	_, err := reg.CreateLLM(config.ProviderEntry{Name: "broken"})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected factory error %v, got %v", wantErr, err)
	}
}
