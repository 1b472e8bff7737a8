// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"convenience/internal/pkg/nacos"
	"convenience/internal/tracing"
)

type AppCtx struct {
	Mux    *http.ServeMux
	Nacos  *nacos.Client
	Config *Config
}

// AppInfo 包含了启动服务所需的信息
type AppInfo struct {
	ServiceName      string
	Port             int
	RegisterHandlers func(appCtx AppCtx) // 注册服务自己的 HTTP 路由
	// OnShutdown 在 HTTP 服务器关闭之后调用，用于关闭 kafka writer 等资源
	OnShutdown func(ctx context.Context)
	// OnListen 监听成功后回调实际地址
	OnListen func(addr net.Addr)
}

// StartService 启动服务并阻塞直到收到 SIGINT/SIGTERM
func StartService(info AppInfo) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := Run(ctx, info); err != nil {
		log.Fatal().Err(err).Str("service", info.ServiceName).Msg("service exited")
	}
}

// Run 启动 tracer、可选的 nacos 注册和 HTTP 服务器，ctx 结束后按相反顺序优雅关停
func Run(ctx context.Context, info AppInfo) error {
	cfg := GetCurrentConfig()

	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		return errors.Wrap(err, "initialize tracer provider")
	}

	var (
		namingClient *nacos.Client
		ip           string
	)
	if addrs := cfg.Infra.Nacos.ServerAddrs; addrs != "" {
		namingClient, err = nacos.NewNacosClient(addrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
		if err != nil {
			return errors.Wrap(err, "initialize nacos client")
		}
		if ip, err = outboundIP(); err != nil {
			return errors.Wrap(err, "get outbound IP address")
		}
		if err = namingClient.RegisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
			return err
		}
	}

	mux := http.NewServeMux()
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{Mux: mux, Nacos: namingClient, Config: cfg})
	}

	lis, err := net.Listen("tcp", ":"+strconv.Itoa(info.Port))
	if err != nil {
		return errors.Wrapf(err, "listen on :%d", info.Port)
	}
	if info.OnListen != nil {
		info.OnListen(lis.Addr())
	}
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("service", info.ServiceName).Str("addr", lis.Addr().String()).Msg("listening")
		if err := server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "serve http")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Str("service", info.ServiceName).Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// 后进先出：先注销，再停 HTTP，最后刷新 trace
		if namingClient != nil {
			if err := namingClient.DeregisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
				log.Error().Err(err).Msg("error deregistering from nacos")
			}
			namingClient.Close()
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("error shutting down http server")
		}
		if info.OnShutdown != nil {
			info.OnShutdown(shutdownCtx)
		}
		tracing.Shutdown(shutdownCtx, tp)
		log.Info().Str("service", info.ServiceName).Msg("gracefully shut down")
		return nil
	})
	return g.Wait()
}

// outboundIP 返回本机对外通信使用的地址，用于服务注册
func outboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
