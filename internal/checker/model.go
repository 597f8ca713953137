package checker

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/model"
	"github.com/bigkaa/goartstore/quarantine-module/internal/format/gguf"
	"github.com/bigkaa/goartstore/quarantine-module/internal/format/safetensors"
	"github.com/bigkaa/goartstore/quarantine-module/internal/stage"
)

// maxModelConfigSize — config.json крупнее не разбирается.
const maxModelConfigSize = 16 << 20

// DangerousModelExtensions — форматы на основе pickle, способные выполнить
// произвольный код при загрузке.
var DangerousModelExtensions = map[string]bool{
	".pkl": true, ".pickle": true, ".bin": true, ".pt": true, ".pth": true, ".ckpt": true,
}

var knownArchitectures = map[string]bool{
	"LlamaForCausalLM": true, "MistralForCausalLM": true, "Qwen2ForCausalLM": true,
	"GPTNeoXForCausalLM": true, "GPT2LMHeadModel": true, "PhiForCausalLM": true,
	"GemmaForCausalLM": true, "Phi3ForCausalLM": true, "CohereForCausalLM": true,
	"StableLmForCausalLM": true, "InternLMForCausalLM": true, "BaichuanForCausalLM": true,
	"ChatGLMForCausalLM": true, "FalconForCausalLM": true, "MPTForCausalLM": true,
	"BloomForCausalLM": true, "OPTForCausalLM": true,
}

var knownModelTypes = map[string]bool{
	"llama": true, "mistral": true, "qwen2": true, "gpt_neox": true, "gpt2": true,
	"phi": true, "phi3": true, "gemma": true, "gemma2": true, "cohere": true,
	"stablelm": true, "internlm": true, "baichuan": true, "chatglm": true,
	"falcon": true, "mpt": true, "bloom": true, "opt": true,
}

// suspiciousMetadataTokens — подстроки ключей метаданных, похожие на код.
var suspiciousMetadataTokens = []string{"eval", "exec", "import", "os.", "subprocess", "system("}

// ValidateModel проверяет файл модели или её config.json.
func ValidateModel(path, originalFilename string) ([]model.Finding, error) {
	ext := stage.Extension(originalFilename)
	if DangerousModelExtensions[ext] {
		return []model.Finding{aiFinding(model.SeverityCritical, "model_dangerous_format",
			fmt.Sprintf("Формат %s может выполнить произвольный код при десериализации pickle", ext),
			map[string]any{"extension": ext, "filename": originalFilename})}, nil
	}

	switch {
	case ext == ".safetensors":
		return validateSafetensorsModel(path, originalFilename)
	case ext == ".gguf":
		return validateGGUF(path, originalFilename)
	case stage.Basename(originalFilename) == "config.json" || ext == ".json":
		return validateModelConfig(path, originalFilename)
	default:
		return nil, nil
	}
}

func validateSafetensorsModel(path, filename string) ([]model.Finding, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}

	hdr, err := safetensors.ReadHeader(f, st.Size(), 0)
	if err != nil {
		if errors.Is(err, safetensors.ErrTooSmall) || errors.Is(err, safetensors.ErrHeaderLength) ||
			errors.Is(err, safetensors.ErrHeaderEncoding) {
			return []model.Finding{aiFinding(model.SeverityHigh, "model_invalid_header",
				"Некорректный заголовок safetensors: "+err.Error(),
				map[string]any{"filename": filename, "file_size": st.Size()})}, nil
		}
		return nil, err
	}

	var findings []model.Finding
	var suspicious []string
	for key := range hdr.Metadata {
		lower := strings.ToLower(key)
		for _, token := range suspiciousMetadataTokens {
			if strings.Contains(lower, token) {
				suspicious = append(suspicious, key)
				break
			}
		}
	}
	if len(suspicious) > 0 {
		slices.Sort(suspicious)
		findings = append(findings, aiFinding(model.SeverityMedium, "model_suspicious_metadata",
			fmt.Sprintf("Подозрительные ключи метаданных: %v", suspicious),
			map[string]any{"filename": filename, "suspicious_keys": suspicious}))
	}

	for _, name := range hdr.Malformed {
		findings = append(findings, aiFinding(model.SeverityMedium, "model_malformed_tensor",
			fmt.Sprintf("Некорректное описание тензора %q (shape, data_offsets или dtype)", name),
			map[string]any{"filename": filename, "tensor": name}))
	}

	names := make([]string, 0, len(hdr.Tensors))
	for name := range hdr.Tensors {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		dtype := hdr.Tensors[name].DType
		if dtype == "" || safetensors.AllowedDTypes[dtype] {
			continue
		}
		findings = append(findings, aiFinding(model.SeverityMedium, "model_invalid_dtype",
			fmt.Sprintf("Недопустимый dtype %q у тензора %q", dtype, name),
			map[string]any{"filename": filename, "tensor": name, "dtype": dtype}))
	}
	return findings, nil
}

func validateGGUF(path, filename string) ([]model.Finding, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	hdr, err := gguf.ReadHeader(f)
	switch {
	case err == nil:
		return nil, nil
	case errors.Is(err, gguf.ErrBadMagic):
		return []model.Finding{aiFinding(model.SeverityHigh, "model_invalid_gguf",
			"Некорректный файл GGUF: "+err.Error(),
			map[string]any{"filename": filename})}, nil
	case errors.Is(err, gguf.ErrUnsupportedVersion):
		return []model.Finding{aiFinding(model.SeverityMedium, "model_invalid_gguf_version",
			fmt.Sprintf("Неизвестная версия GGUF: %d (ожидалась 1, 2 или 3)", hdr.Version),
			map[string]any{"filename": filename, "version": hdr.Version})}, nil
	default:
		return nil, err
	}
}

// validateModelConfig сверяет architectures и model_type с известными.
// Некорректный JSON здесь не сообщается: это забота file_integrity.
func validateModelConfig(path, filename string) ([]model.Finding, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxModelConfigSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxModelConfigSize {
		return nil, nil
	}

	var cfg map[string]any
	if err := json.Unmarshal(data, &cfg); err != nil || cfg == nil {
		return nil, nil
	}

	var findings []model.Finding
	if archs, ok := cfg["architectures"].([]any); ok {
		for _, a := range archs {
			arch, ok := a.(string)
			if !ok || knownArchitectures[arch] {
				continue
			}
			findings = append(findings, aiFinding(model.SeverityLow, "model_unknown_architecture",
				fmt.Sprintf("Неизвестная архитектура модели %q", arch),
				map[string]any{"filename": filename, "architecture": arch}))
		}
	}
	if mt, ok := cfg["model_type"].(string); ok && !knownModelTypes[mt] {
		findings = append(findings, aiFinding(model.SeverityLow, "model_unknown_architecture",
			fmt.Sprintf("Неизвестный тип модели %q", mt),
			map[string]any{"filename": filename, "model_type": mt}))
	}
	return findings, nil
}
