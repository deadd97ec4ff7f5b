package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zoeyai/imagefinder/internal/logger"
	"github.com/zoeyai/imagefinder/pkg/auto/screen"
	"github.com/zoeyai/imagefinder/pkg/config"
	"github.com/zoeyai/imagefinder/pkg/vision"
	"github.com/zoeyai/imagefinder/pkg/vision/finder"
)

// 版本信息 (可通过 ldflags 注入)
var (
	Version   = vision.Version
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// 退出码
const (
	exitError   = 1
	exitNoMatch = 2
)

func main() {
	var (
		needle      = flag.String("needle", "", "模板图像路径")
		haystack    = flag.String("haystack", "", "源图像路径，为空时截取屏幕")
		all         = flag.Bool("all", false, "查找所有实例")
		confidence  = flag.Float64("confidence", 0, "置信度 (0, 1]")
		method      = flag.String("method", "", "相似度方法 (例: TM_CCOEFF_NORMED)")
		scales      = flag.String("scales", "", "缩放序列 (例: 1,0.9,0.8)")
		multiScale  = flag.Bool("multi-scale", true, "多尺度搜索")
		rotation    = flag.Bool("rotation", false, "旋转搜索")
		rotRange    = flag.Float64("rotation-range", 0, "旋转角度范围（度）")
		roi         = flag.String("roi", "", "搜索区域 x,y,w,h（逻辑像素）")
		gridCell    = flag.String("grid", "", "以屏幕网格格子为搜索区域 rows.cols.row.col")
		engine      = flag.String("engine", vision.EngineCV, "视觉引擎 (cv|native)")
		configPath  = flag.String("config", "", "配置文件路径 (.json/.yaml)")
		saveConfig  = flag.Bool("save-config", false, "将本次参数保存到配置文件")
		savePath    = flag.String("save", "", "保存标注结果图像的路径")
		wait        = flag.Duration("wait", 0, "循环匹配直到找到或超时 (例: 10s)")
		logLevel    = flag.String("log-level", "INFO", "日志级别 (DEBUG|INFO|WARN|ERROR)")
		debug       = flag.Bool("debug", false, "输出诊断日志")
		showVersion = flag.Bool("version", false, "显示版本信息")
		showHelp    = flag.Bool("help", false, "显示帮助信息")
	)

	flag.Parse()

	if *showVersion {
		printVersion()
		return
	}
	if *showHelp {
		printHelp()
		return
	}
	if *needle == "" {
		fmt.Println("[ERROR] 缺少模板图像，请使用 -needle 参数指定")
		printHelp()
		os.Exit(exitError)
	}

	log := logger.Default()
	log.SetLevel(logger.ParseLevel(*logLevel))

	// 加载配置，命令行参数优先级高于配置文件
	manager := config.GetDefaultManager()
	if *configPath != "" {
		manager = config.NewManagerWithFile(*configPath)
	}
	cfg, err := manager.Load()
	if err != nil {
		log.Warn("加载配置失败: %v", err)
	}

	explicit := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	overrides := cliOverrides{
		confidence:     *confidence,
		method:         *method,
		scales:         *scales,
		multiScale:     *multiScale,
		multiScaleSet:  explicit["multi-scale"],
		rotation:       *rotation,
		rotationSet:    explicit["rotation"],
		rotationRange:  *rotRange,
		rotationRngSet: explicit["rotation-range"],
		debug:          *debug,
	}
	if cfg, err = overrides.apply(cfg); err != nil {
		log.Error("参数无效: %v", err)
		os.Exit(exitError)
	}

	if *saveConfig {
		if err := manager.Save(cfg); err != nil {
			log.Warn("保存配置失败: %v", err)
		} else {
			log.Info("配置已保存到 %s", manager.GetConfigFile())
		}
	}

	f, err := vision.NewFinder(*engine, finder.WithConfig(cfg), finder.WithLogger(log))
	if err != nil {
		log.Error("%v", err)
		os.Exit(exitError)
	}
	vision.SetDefault(f)

	opts := []vision.Option{vision.WithTimeout(*wait)}
	if *roi != "" || *gridCell != "" {
		region, err := resolveROI(*roi, *gridCell, screen.New())
		if err != nil {
			log.Error("参数无效: %v", err)
			os.Exit(exitError)
		}
		opts = append(opts, vision.WithROI(region))
	}

	// 需要标注时自行截屏，以便在同一张图上绘制
	var source finder.Snapshot
	if *haystack != "" {
		opts = append(opts, vision.WithHaystack(*haystack))
	} else {
		if msg := screen.PermissionInstructions(); msg != "" {
			log.Warn("%s", msg)
		}
		if *savePath != "" && *wait == 0 {
			img, density, err := screen.New().Capture()
			if err != nil {
				log.Error("%v", err)
				os.Exit(exitError)
			}
			source = finder.Snapshot{Image: img, Density: density}
			opts = append(opts, vision.WithHaystack(source))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	results, err := run(ctx, *needle, *all, *wait, opts)
	if err != nil {
		log.Error("%v", err)
		if errors.Is(err, finder.ErrNoMatch) {
			os.Exit(exitNoMatch)
		}
		os.Exit(exitError)
	}

	matches := make([]vision.Match, len(results))
	for i, r := range results {
		matches[i] = vision.NewMatch(r)
	}
	out, _ := json.MarshalIndent(matches, "", "  ")
	fmt.Println(string(out))

	if *savePath != "" {
		if err := saveAnnotated(*savePath, *haystack, source, results); err != nil {
			log.Warn("保存标注图像失败: %v", err)
		} else {
			log.Info("标注图像已保存到 %s", *savePath)
		}
	}
}

// run 执行查找；wait 大于 0 时循环匹配
func run(ctx context.Context, needle string, all bool, wait time.Duration, opts []vision.Option) ([]finder.MatchResult, error) {
	switch {
	case wait > 0:
		r, err := vision.MatchLoop(ctx, needle, opts...)
		if err != nil {
			return nil, err
		}
		return []finder.MatchResult{r}, nil
	case all:
		return vision.FindMatches(needle, opts...)
	}
	r, err := vision.FindMatch(needle, opts...)
	if err != nil {
		return nil, err
	}
	return []finder.MatchResult{r}, nil
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("Image Finder v%s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}

// printHelp 打印帮助信息
func printHelp() {
	fmt.Println("Image Finder - 屏幕模板查找工具")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  imagefinder -needle <模板> [选项]")
	fmt.Println()
	fmt.Println("选项:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  # 在当前屏幕查找")
	fmt.Println("  imagefinder -needle button.png")
	fmt.Println()
	fmt.Println("  # 在截图中查找所有实例并保存标注")
	fmt.Println("  imagefinder -needle icon.png -haystack screen.png -all -save out.png")
	fmt.Println()
	fmt.Println("  # 限定区域，旋转查找")
	fmt.Println("  imagefinder -needle arrow.png -roi 0,0,800,600 -rotation -rotation-range 45")
	fmt.Println()
	fmt.Println("  # 只在屏幕右上四分之一查找")
	fmt.Println("  imagefinder -needle close.png -grid 2.2.1.2")
	fmt.Println()
	fmt.Println("  # 等待最多 10 秒直到出现")
	fmt.Println("  imagefinder -needle dialog.png -wait 10s")
	fmt.Println()
	fmt.Printf("配置文件位置: %s\n", config.GetDefaultManager().GetConfigFile())
}
