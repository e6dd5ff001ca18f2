// Command pipelinetester exercises the live providers one stage at a time.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/zhouzirui/janvani/backend/internal/config"
	"github.com/zhouzirui/janvani/backend/internal/model/language"
	speechmodel "github.com/zhouzirui/janvani/backend/internal/model/speech"
	"github.com/zhouzirui/janvani/backend/internal/service/ai"
	"github.com/zhouzirui/janvani/backend/internal/service/bhashini"
	"github.com/zhouzirui/janvani/backend/internal/service/chat"
	"github.com/zhouzirui/janvani/backend/internal/service/conversation"
	"github.com/zhouzirui/janvani/backend/internal/service/speech"
	"github.com/zhouzirui/janvani/backend/internal/service/translation"
)

func main() {
	log.SetHandler(cli.New(os.Stderr))

	if err := godotenv.Load(); err != nil {
		log.WithError(err).Warn("无法加载 .env，改用系统环境变量")
	}

	mode := flag.String("mode", "", "测试模式: chat, translate, asr 或 tts")
	text := flag.String("text", "", "translate/tts 输入文本")
	lang := flag.String("lang", "hi", "用户语言代码")
	target := flag.String("target", "en", "translate 目标语言")
	audioPath := flag.String("audio", "", "ASR 输入音频文件路径")
	outputPath := flag.String("out", "", "TTS 输出音频文件路径 (默认自动生成)")
	timeout := flag.Duration("timeout", 45*time.Second, "单次请求超时时间")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("配置加载失败")
	}

	catalog := language.NewMemoryStore(language.Seed())
	client := bhashini.NewClient(bhashini.Config{
		UserID:     cfg.Bhashini.UserID,
		APIKey:     cfg.Bhashini.APIKey,
		PipelineID: cfg.Bhashini.PipelineID,
		ConfigURL:  cfg.Bhashini.ConfigURL,
		Timeout:    *timeout,
	}, &http.Client{Timeout: *timeout})

	ctx := context.Background()
	switch *mode {
	case "translate":
		runTranslate(ctx, translation.NewService(client, catalog), *text, *lang, *target)
	case "asr":
		svc := speech.NewService(speech.NewBhashiniRecognizer(client, cfg.Speech.SampleRate), speech.NewBhashiniSynthesizer(client, cfg.Speech.SampleRate), catalog)
		runASR(ctx, svc, *audioPath, *lang)
	case "tts":
		svc := speech.NewService(speech.NewBhashiniRecognizer(client, cfg.Speech.SampleRate), speech.NewBhashiniSynthesizer(client, cfg.Speech.SampleRate), catalog)
		runTTS(ctx, svc, *text, *lang, *outputPath)
	case "chat":
		runChat(ctx, cfg, translation.NewService(client, catalog), catalog, *lang)
	default:
		flag.Usage()
		log.Fatal("请通过 -mode=chat|translate|asr|tts 指定测试模式")
	}
}

func runTranslate(ctx context.Context, svc *translation.Service, text, source, target string) {
	if strings.TrimSpace(text) == "" {
		log.Fatal("translate 模式需要通过 -text 提供文本")
	}
	start := time.Now()
	out, err := svc.Translate(ctx, text, source, target)
	if err != nil {
		log.WithError(err).Fatal("翻译失败")
	}
	log.WithFields(log.Fields{"source": source, "target": target, "took": time.Since(start).String()}).Info(out)
}

func runASR(ctx context.Context, svc *speech.Service, audioPath, lang string) {
	if audioPath == "" {
		log.Fatal("ASR 模式需要通过 -audio 指定音频文件路径")
	}
	audio, err := os.ReadFile(audioPath)
	if err != nil {
		log.WithError(err).Fatal("读取音频文件失败")
	}

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(audioPath)), ".")
	resp, err := svc.SpeechToText(ctx, &speechmodel.ASRRequest{Audio: audio, Format: format, Language: lang})
	if err != nil {
		log.WithError(err).Fatal("ASR 调用失败")
	}
	log.WithFields(log.Fields{"language": resp.Language, "provider": resp.Provider}).Info(resp.Text)
}

func runTTS(ctx context.Context, svc *speech.Service, text, lang, outputPath string) {
	if strings.TrimSpace(text) == "" {
		log.Fatal("TTS 模式需要通过 -text 提供待合成文本")
	}
	resp, err := svc.TextToSpeech(ctx, &speechmodel.TTSRequest{Text: text, Language: lang})
	if err != nil {
		log.WithError(err).Fatal("TTS 调用失败")
	}

	if outputPath == "" {
		outputPath = fmt.Sprintf("tts-%s-%d.%s", lang, time.Now().Unix(), resp.Format)
	}
	if err := os.WriteFile(outputPath, resp.Audio, 0o644); err != nil {
		log.WithError(err).Fatal("写入音频文件失败")
	}
	log.WithFields(log.Fields{"bytes": len(resp.Audio), "file": outputPath}).Info("TTS 合成成功")
}

// runChat 从标准输入逐行读取消息，走完整的翻译-生成-回译流程。
func runChat(ctx context.Context, cfg *config.Config, translator *translation.Service, catalog language.Store, lang string) {
	chatModel, err := cfg.AI.NewChatModel(ctx)
	if err != nil {
		log.WithError(err).Fatal("模型初始化失败")
	}
	generator, err := ai.NewService(ctx, chatModel, ai.Options{
		RetryOnce: cfg.AI.RetryOnce,
		Provider:  "ark",
		Timeout:   cfg.ProviderTimeout,
	})
	if err != nil {
		log.WithError(err).Fatal("AI 服务初始化失败")
	}

	orch := conversation.New(translator, generator, chat.NewService(chat.DefaultOptions()), catalog, conversation.Config{
		PivotLanguage: cfg.Conversation.PivotLanguage,
		HistoryLimit:  cfg.Conversation.HistoryLimit,
	}, conversation.WithDetector(generator))

	sessionID := "cli-" + uuid.NewString()[:8]
	log.WithFields(log.Fields{"session": sessionID, "language": lang}).Info("输入消息后回车，Ctrl-D 退出")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		res, err := orch.HandleTurn(ctx, conversation.TurnRequest{SessionID: sessionID, Text: line, Language: lang})
		if err != nil {
			log.WithError(err).Error("turn failed")
			continue
		}
		fmt.Println(res.Reply)
	}
}
