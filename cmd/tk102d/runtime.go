package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"tk102-ng/internal/config"
	"tk102-ng/internal/mqttpub"
	"tk102-ng/internal/replay"
	"tk102-ng/internal/server"
	"tk102-ng/internal/tk102"
	"tk102-ng/internal/udp"
	"tk102-ng/internal/web"
)

// run wires the listener to its observers and blocks until ctx is cancelled
// or a component fails.
func run(ctx context.Context, cfg config.Config, logs *web.LogBuffer, verbose bool) error {
	hub := web.NewHub(cfg.Web.RecentTracks)
	obs := server.Observers{logObserver(verbose), hub}

	if cfg.MQTT.Enable {
		pub, err := mqttpub.Connect(mqttConfig(cfg.MQTT))
		if err != nil {
			return err
		}
		defer pub.Close()
		obs = append(obs, pub)
	}

	if cfg.Record.Enable {
		w, err := replay.CreateWriter(cfg.Record.Path)
		if err != nil {
			return fmt.Errorf("record: %w", err)
		}
		defer func() {
			if err := w.Close(); err != nil {
				log.Printf("record: close: %v", err)
			}
		}()
		log.Printf("record: appending payloads to %s", cfg.Record.Path)
		obs = append(obs, w)
	}

	if cfg.UDP.Enable {
		fwd, err := udp.NewForwarder(cfg.UDP.Dest, cfg.UDP.Format)
		if err != nil {
			return fmt.Errorf("udp: %w", err)
		}
		defer fwd.Close()
		log.Printf("udp: forwarding tracks to %s as %s", cfg.UDP.Dest, cfg.UDP.Format)
		obs = append(obs, fwd)
	}

	l, err := server.New(cfg.Listen.Settings(), tk102.Default(), obs)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if err := l.Start(gctx); err != nil {
		return err
	}
	g.Go(func() error {
		<-gctx.Done()
		l.Close()
		return nil
	})
	if cfg.Web.Enable {
		g.Go(func() error {
			if err := web.Serve(gctx, cfg.Web.Listen, web.Handler(l, hub, logs)); err != nil {
				return fmt.Errorf("web: %w", err)
			}
			return nil
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func mqttConfig(c config.MQTTConfig) mqttpub.Config {
	return mqttpub.Config{
		Broker:      c.Broker,
		ClientID:    c.ClientID,
		TopicPrefix: c.TopicPrefix,
		QoS:         byte(c.QoS),
		Username:    c.Username,
		Password:    c.Password,
		Timeout:     c.Timeout,
	}
}

// logObserver logs every event. Connection and data events are chatty and only
// logged when verbose.
func logObserver(verbose bool) server.Observer {
	return server.ObserverFunc(func(ev server.Event) {
		if line, ok := describeEvent(ev, verbose); ok {
			log.Print(line)
		}
	})
}

func describeEvent(ev server.Event, verbose bool) (string, bool) {
	remote := ""
	if ev.Conn != nil {
		remote = ev.Conn.RemoteAddr
	}
	switch ev.Kind {
	case server.EventListening:
		return fmt.Sprintf("listener: listening on %v", ev.Addr), true
	case server.EventConnection:
		return fmt.Sprintf("listener: connection from %s", remote), verbose
	case server.EventData:
		return fmt.Sprintf("listener: %d bytes from %s", len(ev.Chunk), remote), verbose
	case server.EventTimeout:
		return fmt.Sprintf("listener: %s timed out", remote), true
	case server.EventTrack:
		if ev.Report == nil {
			return "", false
		}
		r := ev.Report
		return fmt.Sprintf("track: imei=%s lat=%.6f lon=%.6f kmh=%.3f fix=%s checksum=%t",
			r.IMEI, r.Geo.Latitude, r.Geo.Longitude, r.Speed.KMH, r.GPS.Fix, r.Checksum), true
	case server.EventFail:
		return fmt.Sprintf("fail: %s: %v", remote, ev.Err), true
	case server.EventError:
		if remote == "" {
			return fmt.Sprintf("listener: %v", ev.Err), true
		}
		return fmt.Sprintf("listener: %s: %v", remote, ev.Err), true
	}
	return "", false
}
