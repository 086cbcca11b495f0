package binding

import (
	"strconv"
	"strings"

	"github.com/tidwall/buntdb"
)

const bindKeyPrefix = "bind:"

// BuntIO 基于 buntdb 的持久化后端，每条绑定一个键。
// Save 语义与文件后端一致：整表覆盖。
type BuntIO struct {
	db *buntdb.DB
}

// NewBuntIO 打开（或创建）buntdb 库。path 传 ":memory:" 时仅驻留内存。
func NewBuntIO(path string) (*BuntIO, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, err
	}
	return &BuntIO{db: db}, nil
}

func (b *BuntIO) Close() error {
	return b.db.Close()
}

func (b *BuntIO) Load() (map[string]int64, error) {
	records := map[string]int64{}
	err := b.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(bindKeyPrefix+"*", func(key, value string) bool {
			id, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return true
			}
			records[strings.TrimPrefix(key, bindKeyPrefix)] = id
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (b *BuntIO) Save(records map[string]int64) error {
	return b.db.Update(func(tx *buntdb.Tx) error {
		var stale []string
		err := tx.AscendKeys(bindKeyPrefix+"*", func(key, _ string) bool {
			if _, keep := records[strings.TrimPrefix(key, bindKeyPrefix)]; !keep {
				stale = append(stale, key)
			}
			return true
		})
		if err != nil {
			return err
		}
		for _, key := range stale {
			if _, err := tx.Delete(key); err != nil {
				return err
			}
		}
		for gameID, externalID := range records {
			if _, _, err := tx.Set(bindKeyPrefix+gameID, strconv.FormatInt(externalID, 10), nil); err != nil {
				return err
			}
		}
		return nil
	})
}
