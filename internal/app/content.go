package app

import (
	"context"
	"time"
)

const (
	initialLoadWait     = 3 * time.Second
	afterLoadMoreWait   = 3 * time.Second
	loadMoreScrollPause = 500 * time.Millisecond
	maxLoadIterations   = 5
	// Прирост HTML в байтах, ниже которого считаем, что контент не изменился
	growthThreshold  = 500
	minimalGrowthCap = 1000
)

// loadAllContent прокручивает страницу и нажимает "load more", пока контент растёт.
func (c *Cycle) loadAllContent(ctx context.Context) error {
	c.logger.Info("Loading all content...")

	if err := c.emu.Sleep(ctx, initialLoadWait); err != nil {
		return err
	}

	previous, err := c.pageSize(ctx)
	if err != nil {
		return err
	}

	maxAttempts := c.settings.LoadMoreMaxAttempts
	attempts, iterations := 0, 0
	changed := true

	for changed && attempts < maxAttempts && iterations < maxLoadIterations {
		iterations++
		c.logger.Info("Content loading iteration", "iteration", iterations, "max", maxLoadIterations)

		if err := c.emu.ScrollThrough(ctx, c.page); err != nil {
			return err
		}

		clicked, err := c.clickLoadMore(ctx)
		if err != nil {
			return err
		}
		if clicked {
			attempts++
			c.logger.Info("Clicked 'load more' button", "attempt", attempts, "max", maxAttempts)
			if err := c.emu.Sleep(ctx, afterLoadMoreWait); err != nil {
				return err
			}
		}

		current, err := c.pageSize(ctx)
		if err != nil {
			return err
		}
		growth := current - previous
		c.logger.Debug("content size change", "bytes", growth)

		switch {
		case clicked && growth < growthThreshold:
			// Ещё одна прокрутка, прежде чем решить, что всё загружено
			if err := c.emu.ScrollThrough(ctx, c.page); err != nil {
				return err
			}
			if current, err = c.pageSize(ctx); err != nil {
				return err
			}
			if current-previous < growthThreshold {
				c.logger.Info("Clicked load more but content didn't change significantly")
				changed = false
			} else {
				previous = current
			}
		case growth > growthThreshold:
			previous = current
		case !clicked:
			c.logger.Info("No more 'load more' buttons found and content unchanged")
			changed = false
		}

		if iterations > 2 && growth < minimalGrowthCap {
			c.logger.Info("Minimal content growth after multiple attempts, ending content loading")
			break
		}
	}

	if attempts >= maxAttempts && maxAttempts > 0 {
		c.logger.Info("Reached maximum number of 'load more' attempts", "max", maxAttempts)
	} else if iterations >= maxLoadIterations {
		c.logger.Info("Reached maximum number of content loading iterations", "max", maxLoadIterations)
	}

	if err := c.emu.ScrollThrough(ctx, c.page); err != nil {
		return err
	}
	c.logger.Info("Finished loading all content")
	return nil
}

func (c *Cycle) pageSize(ctx context.Context) (int, error) {
	html, err := c.page.HTML(ctx)
	if err != nil {
		return 0, err
	}
	return len(html), nil
}

// clickLoadMore нажимает кнопку "load more", если она есть. Обычный клик, затем JS.
func (c *Cycle) clickLoadMore(ctx context.Context) (bool, error) {
	btn, err := c.finder.LoadMore(ctx, c.page, c.site)
	if err != nil || btn == nil {
		return false, err
	}

	if err := btn.ScrollIntoView(); err != nil {
		c.logger.Debug("load more scroll failed", "error", err)
	}
	if err := c.emu.Sleep(ctx, loadMoreScrollPause); err != nil {
		return false, err
	}
	if err := btn.Click(); err != nil {
		if err := btn.JSClick(); err != nil {
			c.logger.Debug("load more click failed", "error", err)
			return false, nil
		}
	}
	return true, nil
}
